// Package gmail reads messages through the Gmail API so they can be fed to
// the extraction pipeline and the action proposer.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Summary is a search hit.
type Summary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
}

// Attachment holds metadata about a message attachment. Attachment
// contents are never downloaded.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Message is a fully decoded message.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	CC          string       `json:"cc,omitempty"`
	Subject     string       `json:"subject"`
	Date        string       `json:"date"`
	Body        string       `json:"body"`
	Labels      []string     `json:"labels,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Text renders the message as the plain text handed to the model.
func (m *Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", m.From)
	fmt.Fprintf(&b, "To: %s\n", m.To)
	if m.CC != "" {
		fmt.Fprintf(&b, "Cc: %s\n", m.CC)
	}
	fmt.Fprintf(&b, "Date: %s\n", m.Date)
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	if len(m.Attachments) > 0 {
		names := make([]string, len(m.Attachments))
		for i, a := range m.Attachments {
			names[i] = a.Filename
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(m.Body))
	b.WriteString("\n")
	return b.String()
}

// Client reads one mailbox.
type Client struct {
	svc *gm.Service
	log *zap.Logger
}

// New returns a client for the authenticated user's mailbox. Pass
// option.WithHTTPClient with an authorized client from the auth package.
func New(ctx context.Context, log *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{svc: svc, log: log}, nil
}

// Search finds messages matching a Gmail query. Messages whose metadata
// cannot be fetched are skipped.
func (c *Client) Search(ctx context.Context, query string, maxResults int64) ([]Summary, error) {
	resp, err := c.svc.Users.Messages.List("me").
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	summaries := make([]Summary, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		detail, err := c.svc.Users.Messages.Get("me", msg.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("skipping message", zap.String("id", msg.Id), zap.Error(err))
			continue
		}

		headers := headerMap(detail.Payload)
		summaries = append(summaries, Summary{
			ID:       detail.Id,
			ThreadID: detail.ThreadId,
			From:     headers["From"],
			To:       headers["To"],
			Subject:  defaultStr(headers["Subject"], "(no subject)"),
			Date:     headers["Date"],
			Snippet:  detail.Snippet,
		})
	}
	return summaries, nil
}

// Read fetches a message by ID and decodes its body.
func (c *Client) Read(ctx context.Context, id string) (*Message, error) {
	msg, err := c.svc.Users.Messages.Get("me", id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return decodeMessage(msg), nil
}

func decodeMessage(msg *gm.Message) *Message {
	headers := headerMap(msg.Payload)
	return &Message{
		ID:          msg.Id,
		ThreadID:    msg.ThreadId,
		From:        headers["From"],
		To:          headers["To"],
		CC:          headers["Cc"],
		Subject:     defaultStr(headers["Subject"], "(no subject)"),
		Date:        headers["Date"],
		Body:        extractBody(msg.Payload),
		Labels:      msg.LabelIds,
		Attachments: extractAttachments(msg.Payload),
	}
}

// extractBody returns the first text/plain part, searching nested
// multiparts, and falls back to text/html.
func extractBody(payload *gm.MessagePart) string {
	if payload == nil {
		return ""
	}
	if body := findPart(payload, "text/plain"); body != "" {
		return body
	}
	if body := findPart(payload, "text/html"); body != "" {
		return "(HTML content)\n" + body
	}
	return "(No readable body found)"
}

func findPart(part *gm.MessagePart, mimeType string) string {
	if len(part.Parts) == 0 {
		if part.Filename != "" || part.Body == nil || part.Body.Data == "" {
			return ""
		}
		if part.MimeType != mimeType && !(mimeType == "text/plain" && part.MimeType == "") {
			return ""
		}
		decoded, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return ""
		}
		return decoded
	}
	for _, p := range part.Parts {
		if body := findPart(p, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func extractAttachments(payload *gm.MessagePart) []Attachment {
	if payload == nil {
		return nil
	}
	var out []Attachment
	var scan func(parts []*gm.MessagePart)
	scan = func(parts []*gm.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" {
				att := Attachment{Filename: part.Filename, MimeType: part.MimeType}
				if part.Body != nil {
					att.Size = part.Body.Size
				}
				out = append(out, att)
			}
			scan(part.Parts)
		}
	}
	scan(payload.Parts)
	return out
}

func headerMap(payload *gm.MessagePart) map[string]string {
	m := make(map[string]string)
	if payload == nil {
		return m
	}
	for _, h := range payload.Headers {
		m[h.Name] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url content, padded or not.
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
