package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *gm.MessagePart
		want    string
	}{
		{
			name:    "single part",
			payload: &gm.MessagePart{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: enc("hello")}},
			want:    "hello",
		},
		{
			name: "nested prefers plain",
			payload: &gm.MessagePart{MimeType: "multipart/mixed", Parts: []*gm.MessagePart{
				{MimeType: "multipart/alternative", Parts: []*gm.MessagePart{
					{MimeType: "text/html", Body: &gm.MessagePartBody{Data: enc("<p>hi</p>")}},
					{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: enc("hi")}},
				}},
			}},
			want: "hi",
		},
		{
			name: "html fallback",
			payload: &gm.MessagePart{MimeType: "multipart/alternative", Parts: []*gm.MessagePart{
				{MimeType: "text/html", Body: &gm.MessagePartBody{Data: enc("<p>hi</p>")}},
			}},
			want: "(HTML content)\n<p>hi</p>",
		},
		{
			name: "attachment is not the body",
			payload: &gm.MessagePart{MimeType: "multipart/mixed", Parts: []*gm.MessagePart{
				{MimeType: "text/plain", Filename: "notes.txt", Body: &gm.MessagePartBody{Data: enc("attached")}},
			}},
			want: "(No readable body found)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBody(tt.payload))
		})
	}
}

func TestDecodeBase64URL(t *testing.T) {
	for _, in := range []string{
		base64.URLEncoding.EncodeToString([]byte("a?b>c")),
		base64.RawURLEncoding.EncodeToString([]byte("a?b>c")),
	} {
		out, err := decodeBase64URL(in)
		require.NoError(t, err)
		assert.Equal(t, "a?b>c", out)
	}
}

func TestMessageText(t *testing.T) {
	m := &Message{
		From:        "pm@example.com",
		To:          "me@example.com",
		Date:        "Mon, 2 Mar 2026 10:00:00 +0000",
		Subject:     "Launch moved",
		Body:        "\nLaunch moves to March 14.\n\n",
		Attachments: []Attachment{{Filename: "plan.pdf"}},
	}
	assert.Equal(t, "From: pm@example.com\nTo: me@example.com\nDate: Mon, 2 Mar 2026 10:00:00 +0000\n"+
		"Subject: Launch moved\nAttachments: plan.pdf\n\nLaunch moves to March 14.\n", m.Text())
}

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "from:pm", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "m1", "threadId": "t1"}, {"id": "gone", "threadId": "t2"}},
		})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"snippet":  "Launch moves",
			"labelIds": []string{"INBOX"},
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]string{
					{"name": "From", "value": "pm@example.com"},
					{"name": "To", "value": "me@example.com"},
					{"name": "Date", "value": "Mon, 2 Mar 2026 10:00:00 +0000"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]any{"data": enc("Launch moves to March 14.")}},
					{"mimeType": "application/pdf", "filename": "plan.pdf", "body": map[string]any{"size": 1200, "attachmentId": "a1"}},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c, err := New(ctx, zaptest.NewLogger(t), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	hits, err := c.Search(ctx, "from:pm", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
	assert.Equal(t, "(no subject)", hits[0].Subject)
	assert.Equal(t, "pm@example.com", hits[0].From)

	msg, err := c.Read(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Launch moves to March 14.", msg.Body)
	assert.Equal(t, []string{"INBOX"}, msg.Labels)
	assert.Equal(t, []Attachment{{Filename: "plan.pdf", MimeType: "application/pdf", Size: 1200}}, msg.Attachments)

	_, err = c.Read(ctx, "gone")
	assert.Error(t, err)
}
