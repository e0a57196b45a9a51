// internal/pipeline/notify/dispatch.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/common/metrics"
	"clientpulse/internal/models"
)

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

// EmailSender matches the SES client wrapper.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SMSSender matches the SNS client wrapper.
type SMSSender interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// NotificationStore persists notification rows for the in-app feed and
// the delivery audit trail.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) error
}

// DispatcherConfig selects the enabled delivery channels.
type DispatcherConfig struct {
	FromEmail   string
	SMSSenderID string
	EmailOn     bool
	SMSOn       bool
}

// Dispatcher delivers one event to a set of positive decisions. The
// in-app row is written for every notified recipient; email and SMS go
// out only with the matching opt-in and an enabled channel.
type Dispatcher struct {
	store NotificationStore
	email EmailSender
	sms   SMSSender
	cfg   DispatcherConfig
	log   logger.Logger
}

func NewDispatcher(store NotificationStore, email EmailSender, sms SMSSender, cfg DispatcherConfig, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{store: store, email: email, sms: sms, cfg: cfg, log: log}
}

// Dispatch fans one event out to every recipient whose decision came back
// positive. A channel failure is recorded and logged, never returned: the
// event already exists and the run must go on.
func (d *Dispatcher) Dispatch(ctx context.Context, entity models.Entity, eventID string, ev models.ClassifiedEvent, insights *models.Insights, decisions []models.NotificationDecision) []models.Notification {
	var sent []models.Notification

	subject, body := composeMessage(entity, ev, insights)

	for _, decision := range decisions {
		if !decision.Notify {
			continue
		}
		r := decision.Recipient

		sent = append(sent, d.record(ctx, r.ID, eventID, ChannelInApp, nil))

		if d.cfg.EmailOn && r.EmailOptIn && r.Email != "" && d.email != nil {
			err := d.sendEmail(ctx, r.Email, subject, body)
			sent = append(sent, d.record(ctx, r.ID, eventID, ChannelEmail, err))
		}

		if d.cfg.SMSOn && r.SMSOptIn && r.Phone != "" && d.sms != nil {
			err := d.sendSMS(ctx, r.Phone, smsText(entity, ev))
			sent = append(sent, d.record(ctx, r.ID, eventID, ChannelSMS, err))
		}
	}
	return sent
}

// record persists the delivery outcome on one channel and bumps metrics.
func (d *Dispatcher) record(ctx context.Context, recipientID, eventID, channel string, sendErr error) models.Notification {
	n := models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		EventID:     eventID,
		Channel:     channel,
		Status:      StatusSent,
		CreatedAt:   time.Now().UTC(),
	}
	if sendErr != nil {
		n.Status = StatusFailed
		d.log.Error("notification delivery failed", map[string]interface{}{
			"channel":   channel,
			"recipient": recipientID,
			"event":     eventID,
			"error":     sendErr.Error(),
		})
	}
	metrics.NotificationsSent.WithLabelValues(channel, n.Status).Inc()

	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.log.Error("failed to persist notification row", map[string]interface{}{
			"channel": channel,
			"event":   eventID,
			"error":   err.Error(),
		})
	}
	return n
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := d.email.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(d.cfg.FromEmail),
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return errors.NewNotificationSendFailedError(ChannelEmail, err)
	}
	return nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, phone, text string) error {
	input := &sns.PublishInput{
		Message:     aws.String(text),
		PhoneNumber: aws.String(phone),
	}
	if d.cfg.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(d.cfg.SMSSenderID),
			},
		}
	}
	if _, err := d.sms.Publish(ctx, input); err != nil {
		return errors.NewNotificationSendFailedError(ChannelSMS, err)
	}
	return nil
}

func composeMessage(entity models.Entity, ev models.ClassifiedEvent, insights *models.Insights) (subject, body string) {
	category := strings.ReplaceAll(ev.Classification.Category, "_", " ")
	subject = fmt.Sprintf("[%s] %s: %s", strings.ToUpper(category), entity.Name, ev.Raw.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "Event detected for %s\n\n", entity.Name)
	fmt.Fprintf(&b, "Category:  %s\n", category)
	fmt.Fprintf(&b, "Relevance: %.2f\n", ev.Classification.RelevanceScore)
	fmt.Fprintf(&b, "Source:    %s\n\n", ev.Raw.SourceName)
	fmt.Fprintf(&b, "%s\n", ev.Raw.Title)
	if ev.Raw.Snippet != "" {
		fmt.Fprintf(&b, "%s\n", ev.Raw.Snippet)
	}
	if ev.Raw.URL != "" {
		fmt.Fprintf(&b, "\n%s\n", ev.Raw.URL)
	}
	if insights != nil {
		fmt.Fprintf(&b, "\nSummary: %s\n", insights.Summary)
		for _, action := range insights.RecommendedActions {
			fmt.Fprintf(&b, "  - %s\n", action)
		}
	}
	return subject, b.String()
}

func smsText(entity models.Entity, ev models.ClassifiedEvent) string {
	category := strings.ReplaceAll(ev.Classification.Category, "_", " ")
	text := fmt.Sprintf("%s (%s): %s", entity.Name, category, ev.Raw.Title)
	// Truncate by rune so a multi-byte character is never cut in half.
	if runes := []rune(text); len(runes) > 140 {
		text = string(runes[:137]) + "..."
	}
	return text
}
