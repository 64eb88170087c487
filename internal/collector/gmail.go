// Package collector gathers candidate article URLs from Gmail and the web.
package collector

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"lettercast/internal/filter"
	"lettercast/internal/model"
)

const noSubject = "(no subject)"

// MailService is the subset of the Gmail API the collector needs.
type MailService interface {
	ListUnread(ctx context.Context, query string, max int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	MarkRead(ctx context.Context, id string) error
}

// GmailAPI implements MailService on top of the official Gmail client.
type GmailAPI struct {
	svc *gmail.Service
}

// NewGmailAPI wraps an authenticated Gmail service.
func NewGmailAPI(svc *gmail.Service) *GmailAPI {
	return &GmailAPI{svc: svc}
}

// ListUnread returns the IDs of messages matching query.
func (a *GmailAPI) ListUnread(ctx context.Context, query string, max int64) ([]string, error) {
	resp, err := a.svc.Users.Messages.List("me").Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage fetches a full message.
func (a *GmailAPI) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := a.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// MarkRead removes the UNREAD label from a message.
func (a *GmailAPI) MarkRead(ctx context.Context, id string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	if _, err := a.svc.Users.Messages.Modify("me", id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}

// Gmail collects newsletter links from unread mail of allowed senders.
type Gmail struct {
	svc        MailService
	senders    []string
	maxResults int64
	rules      []filter.Rule
	log        *slog.Logger
	now        func() time.Time
	scanned    []string
}

// NewGmail creates a Gmail collector.
func NewGmail(svc MailService, senders []string, maxResults int64, rules []filter.Rule, log *slog.Logger) *Gmail {
	return &Gmail{
		svc:        svc,
		senders:    senders,
		maxResults: maxResults,
		rules:      rules,
		log:        log,
		now:        time.Now,
	}
}

// Name identifies the collector in logs.
func (g *Gmail) Name() string { return "gmail" }

// Collect returns one item per link found in unread mail from each allowed
// sender. A failing sender is logged and contributes nothing.
func (g *Gmail) Collect(ctx context.Context) ([]model.CollectedItem, error) {
	var items []model.CollectedItem
	g.scanned = nil
	for _, sender := range g.senders {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		got, ids, err := g.fetchFromSender(ctx, sender)
		if err != nil {
			g.log.Error("collect sender", "sender", sender, "error", err)
			continue
		}
		g.log.Info("collected sender", "sender", sender, "count", len(got))
		items = append(items, got...)
		g.scanned = append(g.scanned, ids...)
	}
	g.log.Info("gmail collection done", "count", len(items))
	return items, nil
}

// ScannedMessages returns the IDs of every message the last Collect read in
// full, including messages that yielded no links. Messages of a failed sender
// are left out.
func (g *Gmail) ScannedMessages() []string {
	return g.scanned
}

// MarkAsRead marks a message as read.
func (g *Gmail) MarkAsRead(ctx context.Context, messageID string) error {
	if err := g.svc.MarkRead(ctx, messageID); err != nil {
		return err
	}
	g.log.Debug("marked read", "message_id", messageID)
	return nil
}

func (g *Gmail) fetchFromSender(ctx context.Context, sender string) ([]model.CollectedItem, []string, error) {
	query := fmt.Sprintf("from:%s is:unread", sender)
	ids, err := g.svc.ListUnread(ctx, query, g.maxResults)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		g.log.Debug("no unread mail", "sender", sender)
		return nil, nil, nil
	}

	var items []model.CollectedItem
	for _, id := range ids {
		msg, err := g.svc.GetMessage(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		subject := Header(msg, "Subject")
		if subject == "" {
			subject = noSubject
		}
		for _, u := range ExtractURLs(Body(msg), g.rules) {
			items = append(items, model.CollectedItem{
				URL:         u,
				Title:       subject,
				Source:      model.SourceGmail,
				SourceName:  sender,
				CollectedAt: g.now(),
				MessageID:   msg.Id,
			})
		}
	}
	return items, ids, nil
}

// Header returns the value of the named header, matched case-insensitively.
func Header(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Body returns the decoded message body: the top-level body when present,
// otherwise the first text/html part, otherwise the first text/plain part.
func Body(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	p := msg.Payload
	if p.Body != nil && p.Body.Data != "" {
		return decodeBody(p.Body.Data)
	}
	if html := findPart(p.Parts, "text/html"); html != "" {
		return html
	}
	return findPart(p.Parts, "text/plain")
}

func findPart(parts []*gmail.MessagePart, mimeType string) string {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
		if body := findPart(part.Parts, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(b), "")
}
