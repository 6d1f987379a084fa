package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackNotifier posts a one-line run summary, either through the Web API
// (token and channels) or through an incoming webhook URL.
type SlackNotifier struct {
	client     *slack.Client
	channels   []string
	webhookURL string
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*slackConfig)

type slackConfig struct {
	apiURL string
}

// WithSlackAPIURL points the Web API client at another base URL.
func WithSlackAPIURL(url string) SlackOption {
	return func(c *slackConfig) { c.apiURL = url }
}

func NewSlackNotifier(token string, channels []string, webhookURL string, opts ...SlackOption) (*SlackNotifier, error) {
	if webhookURL == "" && (token == "" || len(channels) == 0) {
		return nil, fmt.Errorf("slack notifier needs a webhook_url or a token with channels")
	}
	var cfg slackConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &SlackNotifier{channels: channels, webhookURL: webhookURL}
	if token != "" {
		var clientOpts []slack.Option
		if cfg.apiURL != "" {
			clientOpts = append(clientOpts, slack.OptionAPIURL(cfg.apiURL))
		}
		s.client = slack.New(token, clientOpts...)
	}
	return s, nil
}

func (s *SlackNotifier) Fire(ctx context.Context, n Notification) error {
	text := FormatMessage(n)

	if s.webhookURL != "" {
		if err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
			return fmt.Errorf("error sending slack webhook: %w", err)
		}
	}
	if s.client != nil {
		for _, channel := range s.channels {
			if _, _, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
				return fmt.Errorf("error sending slack message: %w", err)
			}
		}
	}
	return nil
}

// FormatMessage renders a notification as a single line of text.
func FormatMessage(n Notification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] discovery %s", n.CampaignID, n.Status)
	if len(n.StageIDs) > 0 {
		fmt.Fprintf(&sb, " for stage %s", strings.Join(n.StageIDs, ", "))
	}
	fmt.Fprintf(&sb, ": %d events in catalog (%d new)", n.EventsTotal, n.EventsAdded)
	if n.Message != "" {
		sb.WriteString(" - ")
		sb.WriteString(n.Message)
	}
	return sb.String()
}
