// Package notify delivers operator notifications over email and chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/netpulse/internal/domain/model"
)

// Notifier delivers a notification over one channel.
type Notifier interface {
	// Name labels the channel in logs and metrics.
	Name() string
	Notify(ctx context.Context, n model.Notification) error
}

// Noop discards every notification.
type Noop struct{}

var _ Notifier = Noop{}

// Name implements Notifier.
func (Noop) Name() string { return "noop" }

// Notify implements Notifier.
func (Noop) Notify(context.Context, model.Notification) error { return nil }

// ReportsDelivery keeps discarded notifications out of delivery metrics.
func (Noop) ReportsDelivery() bool { return true }

// FeedbackMessage renders an accepted feedback submission for operators.
func FeedbackMessage(fb model.Feedback) model.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\n", fb.Type)
	fmt.Fprintf(&b, "Title: %s\n", fb.Title)
	if fb.Rating != nil {
		fmt.Fprintf(&b, "Rating: %d/5\n", *fb.Rating)
	}
	if fb.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", fb.Name)
	}
	if fb.Email != "" {
		fmt.Fprintf(&b, "Email: %s (contact allowed: %t)\n", fb.Email, fb.AllowContact)
	}
	fmt.Fprintf(&b, "Submitted: %s\n", fb.SubmittedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "ID: %s\n\n", fb.ID)
	b.WriteString(fb.Content)

	return model.Notification{
		ID:        uuid.NewString(),
		Subject:   fmt.Sprintf("[feedback/%s] %s", fb.Type, fb.Title),
		Body:      b.String(),
		CreatedAt: fb.SubmittedAt,
	}
}
