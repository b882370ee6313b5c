package jira

import (
	"encoding/json"
	"strings"
)

// document wraps plain text in a one-paragraph Atlassian document.
func document(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": text},
				},
			},
		},
	}
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

// blockTypes end with a line break when flattened.
var blockTypes = map[string]bool{
	"paragraph": true, "heading": true, "listItem": true,
	"codeBlock": true, "blockquote": true, "rule": true,
}

// DescriptionText flattens the description to plain text. Older sites send
// a string; REST v3 sends an Atlassian document.
func (f IssueFields) DescriptionText() string {
	raw := f.Description
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	flatten(&b, doc)
	return strings.TrimSpace(b.String())
}

func flatten(b *strings.Builder, n adfNode) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
		return
	case "hardBreak":
		b.WriteString("\n")
		return
	}
	for _, child := range n.Content {
		flatten(b, child)
	}
	if blockTypes[n.Type] {
		b.WriteString("\n")
	}
}
