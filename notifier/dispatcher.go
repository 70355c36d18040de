package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/slack-go/slack"

	"github.com/datalith/dq-check-workflow/report"
)

// Config wires the delivery channels. A channel with no credentials or
// targets is simply skipped.
type Config struct {
	SlackToken    string
	SlackChannels []string
	SendgridKey   string
	EmailFrom     string
	EmailTo       []string
	WebhookURLs   []string

	// MinStatus limits delivery to reports at or below this status
	// ("SUCCESS" notifies on everything, "PARTIAL" on partial and failed
	// runs, "FAILED" only on failures). Empty means notify always.
	MinStatus string
}

// Dispatcher publishes finished-run outcomes to Slack, email and webhooks.
// Per-channel failures are logged and folded into one combined error; no
// channel blocks another.
type Dispatcher struct {
	cfg            Config
	slackClient    *slack.Client
	sendgridClient *sendgrid.Client
	httpClient     *http.Client
}

func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if cfg.SlackToken != "" {
		d.slackClient = slack.New(cfg.SlackToken)
	}
	if cfg.SendgridKey != "" {
		d.sendgridClient = sendgrid.NewSendClient(cfg.SendgridKey)
	}
	return d
}

// Publish sends the run outcome to every configured channel.
func (d *Dispatcher) Publish(ctx context.Context, rep *report.QualityReport, location string) error {
	if !d.shouldNotify(rep.Status) {
		return nil
	}

	message := formatMessage(rep, location)
	var failed []string

	if d.slackClient != nil && len(d.cfg.SlackChannels) > 0 {
		if err := d.sendSlack(message); err != nil {
			log.Printf("Error sending Slack notification: %v", err)
			failed = append(failed, "slack")
		}
	}
	if d.sendgridClient != nil && len(d.cfg.EmailTo) > 0 {
		if err := d.sendEmail(rep, message); err != nil {
			log.Printf("Error sending email notification: %v", err)
			failed = append(failed, "email")
		}
	}
	if len(d.cfg.WebhookURLs) > 0 {
		if err := d.sendWebhooks(ctx, rep, location); err != nil {
			log.Printf("Error sending webhook notification: %v", err)
			failed = append(failed, "webhook")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("notification delivery failed on: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (d *Dispatcher) shouldNotify(status report.Status) bool {
	switch d.cfg.MinStatus {
	case string(report.StatusPartial):
		return status != report.StatusSuccess
	case string(report.StatusFailed):
		return status == report.StatusFailed
	default:
		return true
	}
}

func formatMessage(rep *report.QualityReport, location string) string {
	return fmt.Sprintf("Data quality check for %s.%s finished with status %s (score %.2f, %d/%d checks passed)\nReport: %s",
		rep.Database, rep.Table, rep.Status,
		rep.ExecutionSummary.QualityScore,
		rep.ExecutionSummary.ChecksPassed,
		rep.ExecutionSummary.ChecksPerformed,
		location)
}

func (d *Dispatcher) sendSlack(message string) error {
	for _, channel := range d.cfg.SlackChannels {
		_, _, err := d.slackClient.PostMessage(
			channel,
			slack.MsgOptionText(message, false),
		)
		if err != nil {
			return fmt.Errorf("error sending slack message: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) sendEmail(rep *report.QualityReport, message string) error {
	from := mail.NewEmail("Data Quality Notifications", d.cfg.EmailFrom)
	subject := fmt.Sprintf("Data quality %s: %s.%s", rep.Status, rep.Database, rep.Table)

	for _, to := range d.cfg.EmailTo {
		toEmail := mail.NewEmail("", to)
		email := mail.NewSingleEmail(from, subject, toEmail, message, message)
		if _, err := d.sendgridClient.Send(email); err != nil {
			return fmt.Errorf("error sending email: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) sendWebhooks(ctx context.Context, rep *report.QualityReport, location string) error {
	payload := map[string]interface{}{
		"status":    string(rep.Status),
		"database":  rep.Database,
		"table":     rep.Table,
		"location":  location,
		"summary":   rep.ExecutionSummary,
		"timestamp": time.Now().UTC(),
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	for _, url := range d.cfg.WebhookURLs {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonPayload))
		if err != nil {
			return fmt.Errorf("error creating webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error sending webhook request: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("received non-200 response: %d", resp.StatusCode)
		}
	}
	return nil
}
