// internal/models/notification.go
package models

import "time"

// Recipient is a user who may be notified about events for a tenant.
type Recipient struct {
	ID                 string   `json:"id"`
	TenantID           string   `json:"tenantId"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone,omitempty"`
	RelevanceThreshold float64  `json:"relevanceThreshold"`
	Categories         []string `json:"categories,omitempty"` // empty means all categories
	EmailOptIn         bool     `json:"emailOptIn"`
	SMSOptIn           bool     `json:"smsOptIn"`
}

// AllowsCategory reports whether the recipient's category allow-list admits
// the given event category. An empty list admits everything.
func (r Recipient) AllowsCategory(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// NotificationDecision is the per-(event, recipient) outcome of threshold
// and category evaluation.
type NotificationDecision struct {
	Recipient Recipient `json:"recipient"`
	Notify    bool      `json:"notify"`
	Reason    string    `json:"reason,omitempty"`
}

// Notification is a dispatched notification record.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	EventID     string    `json:"eventId"`
	Channel     string    `json:"channel"` // "in_app", "email", "sms"
	Status      string    `json:"status"`  // "sent", "failed"
	CreatedAt   time.Time `json:"createdAt"`
}
