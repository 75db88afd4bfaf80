// Package slackhook posts notification outbox rows to a Slack incoming
// webhook.
package slackhook

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// Notifier sends one human-readable message per call.
type Notifier interface {
	Notify(ctx context.Context, title, text string, fields map[string]string) error
}

type client struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

var _ Notifier = (*client)(nil)

type Option func(*client)

// WithPostFunc overrides the webhook transport. For tests.
func WithPostFunc(post func(ctx context.Context, url string, msg *slack.WebhookMessage) error) Option {
	return func(x *client) {
		x.post = post
	}
}

// New creates a Slack notifier. An empty URL yields a notifier that drops
// messages with a warning.
func New(webhookURL string, opts ...Option) Notifier {
	x := &client{
		webhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *client) Notify(ctx context.Context, title, text string, fields map[string]string) error {
	if x.webhookURL == "" {
		logging.From(ctx).Warn("slack webhook URL is not configured, dropping notification", "title", title)
		return nil
	}

	attachment := slack.Attachment{
		Title: title,
		Text:  text,
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: key,
			Value: fields[key],
			Short: true,
		})
	}

	msg := &slack.WebhookMessage{
		Text:        title,
		Attachments: []slack.Attachment{attachment},
	}

	if err := x.post(ctx, x.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack webhook", goerr.V("title", title))
	}

	return nil
}
