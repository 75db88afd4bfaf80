package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/service/slackhook"
	"github.com/kvca-ops/enrolsync/pkg/service/webhook"
)

// Sink holds CLI flags for the delivery sinks
type Sink struct {
	sheetWebhookURL string
	slackWebhookURL string
	notifyTemplate  string
	notifyRecipient string
}

// Flags returns CLI flags for the delivery sinks
func (x *Sink) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sheet-webhook-url",
			Category:    "Sinks",
			Usage:       "JSON webhook receiving sheet outbox rows",
			Sources:     cli.EnvVars("ENROLSYNC_SHEET_WEBHOOK_URL", "SHEET_WEBHOOK_URL"),
			Destination: &x.sheetWebhookURL,
		},
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Category:    "Sinks",
			Usage:       "Slack incoming webhook receiving notifications",
			Sources:     cli.EnvVars("ENROLSYNC_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"),
			Destination: &x.slackWebhookURL,
		},
		&cli.StringFlag{
			Name:        "notify-template",
			Category:    "Sinks",
			Usage:       "Template name recorded on chained notification rows",
			Value:       "alert",
			Sources:     cli.EnvVars("ENROLSYNC_NOTIFY_TEMPLATE"),
			Destination: &x.notifyTemplate,
		},
		&cli.StringFlag{
			Name:        "notify-recipient",
			Category:    "Sinks",
			Usage:       "Recipient identity recorded on chained notification rows",
			Value:       "slack:default",
			Sources:     cli.EnvVars("ENROLSYNC_NOTIFY_RECIPIENT"),
			Destination: &x.notifyRecipient,
		},
	}
}

// Configure builds both sinks. Unset URLs yield drop-with-warning sinks.
func (x *Sink) Configure() (webhook.Sink, slackhook.Notifier) {
	return webhook.New(x.sheetWebhookURL), slackhook.New(x.slackWebhookURL)
}

// Template returns the notification template name
func (x *Sink) Template() string {
	return x.notifyTemplate
}

// Recipient returns the notification recipient identity
func (x *Sink) Recipient() string {
	return x.notifyRecipient
}

// LogValue renders the sink configuration without URLs
func (x Sink) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("sheet_webhook", x.sheetWebhookURL != ""),
		slog.Bool("slack_webhook", x.slackWebhookURL != ""),
		slog.String("template", x.notifyTemplate),
		slog.String("recipient", x.notifyRecipient),
	)
}
