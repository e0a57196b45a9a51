// Package notify decides who hears about an event and delivers the
// message. The decision is pure; dispatch is best-effort per channel so
// one failing provider never blocks the others.
package notify

import (
	"fmt"

	"clientpulse/internal/models"
)

// Decide evaluates every recipient against one classified event. A
// recipient is notified when the event's relevance meets their threshold
// and their category allow-list admits the category. Skipped recipients
// carry the reason for auditability.
func Decide(ev models.ClassifiedEvent, recipients []models.Recipient) []models.NotificationDecision {
	decisions := make([]models.NotificationDecision, 0, len(recipients))

	for _, r := range recipients {
		d := models.NotificationDecision{Recipient: r}

		switch {
		case ev.Classification.RelevanceScore < r.RelevanceThreshold:
			d.Reason = fmt.Sprintf("relevance %.2f below threshold %.2f",
				ev.Classification.RelevanceScore, r.RelevanceThreshold)
		case !r.AllowsCategory(ev.Classification.Category):
			d.Reason = fmt.Sprintf("category %q not in recipient allow-list", ev.Classification.Category)
		default:
			d.Notify = true
		}

		decisions = append(decisions, d)
	}
	return decisions
}
