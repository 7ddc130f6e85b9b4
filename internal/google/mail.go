package google

import (
	"context"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/oauth2"
)

var metadataHeaders = []string{"From", "Subject", "Date"}

// FetchMail lists the newest inbox messages. Messages whose detail fetch
// fails or times out are left out and counted in Omitted.
func (w *Workspace) FetchMail(ctx context.Context, userID string) (*Result[Message], error) {
	return fetch(ctx, w, ServiceGmail, userID, DemoMessages, func(ctx context.Context) (*Result[Message], error) {
		return w.loadMail(ctx, userID)
	})
}

func (w *Workspace) loadMail(ctx context.Context, userID string) (*Result[Message], error) {
	list, client, err := call(ctx, w, ServiceGmail, userID, func(ctx context.Context, client *oauth2.Client) (*gmail.ListMessagesResponse, error) {
		svc, err := gmail.NewService(ctx, w.clientOptions(ctx, ServiceGmail, client)...)
		if err != nil {
			return nil, errors.InternalError("failed to create gmail client", err)
		}
		return svc.Users.Messages.List("me").
			MaxResults(w.opts.MailMaxResults).
			LabelIds("INBOX").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Messages))
	for _, ref := range list.Messages {
		ids = append(ids, ref.Id)
	}
	if len(ids) == 0 {
		return &Result[Message]{Items: []Message{}}, nil
	}

	svc, err := gmail.NewService(ctx, w.clientOptions(ctx, ServiceGmail, client)...)
	if err != nil {
		return nil, errors.InternalError("failed to create gmail client", err)
	}

	logger := w.logger.WithContext(ctx)
	items, omitted := fetchEach(ctx, ids, w.opts.DetailConcurrency, w.opts.ItemTimeout,
		func(ctx context.Context, id string) (Message, error) {
			if err := w.limiter.Wait(ctx, string(ServiceGmail)); err != nil {
				return Message{}, err
			}
			msg, err := svc.Users.Messages.Get("me", id).
				Format("metadata").
				MetadataHeaders(metadataHeaders...).
				Context(ctx).
				Do()
			if err != nil {
				return Message{}, Classify(ServiceGmail, err)
			}
			return normalizeMessage(msg), nil
		},
		func(id string, err error) {
			logger.Warn("Dropped message from listing",
				logging.String("message_id", id),
				logging.String("error_type", string(errors.GetType(err))),
				logging.Err(err),
			)
		},
	)

	if omitted > 0 {
		logger.Info("Mail listing is partial", logging.Int("returned", len(items)), logging.Int("omitted", omitted))
	}
	return &Result[Message]{Items: items, Omitted: omitted}, nil
}

func normalizeMessage(msg *gmail.Message) Message {
	out := Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Subject:  "(no subject)",
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			out.Unread = true
		}
	}

	var h mail.Header
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			h.Add(header.Name, header.Value)
		}
	}

	if subject, err := h.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		out.Subject = subject
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
		out.FromName = from[0].Name
	} else {
		out.From = h.Get("From")
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		out.Date = date.UTC()
	} else if msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	return out
}
