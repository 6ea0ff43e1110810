package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

const slackWebhookPrefix = "https://hooks.slack.com/services/"

type slackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// SlackSender posts a pre-formatted attachment to a team's Slack incoming
// webhook, with attachment color derived from severity and the event's URL
// (when set) as the attachment title link.
type SlackSender struct {
	Client *http.Client
}

// NewSlackSender builds a SlackSender with the fixed 10s send timeout.
func NewSlackSender() *SlackSender {
	return &SlackSender{Client: &http.Client{Timeout: SendTimeout}}
}

func (s *SlackSender) Send(ctx context.Context, config []byte, event Event) Result {
	var cfg slackConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return failure("invalid slack channel config: " + err.Error())
	}
	if !strings.HasPrefix(cfg.WebhookURL, slackWebhookPrefix) {
		return failure("webhook_url must start with " + slackWebhookPrefix)
	}

	msg := &slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Color:     severityColor(event.Severity),
				Title:     attachmentTitle(event),
				TitleLink: event.URL,
				Text:      attachmentText(event),
				Footer:    event.Service.Name,
				Ts:        json.Number(fmt.Sprintf("%d", event.Timestamp.Unix())),
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	if err := slack.PostWebhookCustomHTTPContext(ctx, cfg.WebhookURL, s.Client, msg); err != nil {
		return failure(err.Error())
	}
	return success()
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	default:
		return "good"
	}
}

func attachmentTitle(event Event) string {
	if event.Dependency != nil {
		return fmt.Sprintf("%s: %s", event.Service.Name, event.Dependency.Name)
	}
	return event.Service.Name
}

func attachmentText(event Event) string {
	return fmt.Sprintf("%s -> %s", event.OldStatus, event.NewStatus)
}
