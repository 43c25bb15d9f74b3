package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// InterestedLead carries the enriched fields delivered to the notification sinks
type InterestedLead struct {
	AccountID string    `json:"accountId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	Label     string    `json:"label"`
}

// Notifier delivers "Interested" leads to a Slack webhook and an optional
// external webhook. Delivery is best-effort: failures are logged, never
// propagated to the pipeline.
type Notifier struct {
	slackWebhookURL    string
	externalWebhookURL string
	httpClient         *http.Client
	logger             *slog.Logger
}

// NewNotifier creates a new Notifier instance. Either URL may be empty, which
// disables that sink.
func NewNotifier(slackWebhookURL, externalWebhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		slackWebhookURL:    slackWebhookURL,
		externalWebhookURL: externalWebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "notifier"),
	}
}

// NotifyInterested posts the lead to all configured sinks
func (n *Notifier) NotifyInterested(lead InterestedLead) {
	if n.slackWebhookURL == "" && n.externalWebhookURL == "" {
		n.logger.Warn("no notification sinks configured")
		return
	}

	if n.slackWebhookURL != "" {
		if err := n.postJSON(n.slackWebhookURL, slackMessage{Text: formatSlackText(lead)}); err != nil {
			n.logger.Error("slack notification failed", "error", err)
		} else {
			n.logger.Info("slack notification sent", "account_id", lead.AccountID, "subject", lead.Subject)
		}
	}

	if n.externalWebhookURL != "" {
		if err := n.postJSON(n.externalWebhookURL, lead); err != nil {
			n.logger.Error("external webhook failed", "error", err)
		} else {
			n.logger.Info("external webhook triggered", "account_id", lead.AccountID)
		}
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

// formatSlackText renders the lead as a Slack mrkdwn message
func formatSlackText(lead InterestedLead) string {
	snippet := lead.Text
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		snippet = "No content"
	}

	return fmt.Sprintf(
		"*New Interested Lead Found!*\n\n*From:* %s\n*To:* %s\n*Subject:* %s\n\n*Snippet:* %s\n\n%s",
		lead.From, lead.To, lead.Subject, snippet, time.Now().Format(time.DateTime),
	)
}

// postJSON posts a JSON payload to a webhook URL
func (n *Notifier) postJSON(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := n.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
