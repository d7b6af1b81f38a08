package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// BookingNotifier emails operators when a booking is created. It is an
// outbox handler, so a failed send is retried by the deliverer.
type BookingNotifier struct {
	sender     EmailSender
	recipients []string
	logger     *logging.Logger
}

func NewBookingNotifier(sender EmailSender, recipients []string, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{sender: sender, recipients: recipients, logger: logger}
}

func (n *BookingNotifier) Handle(ctx context.Context, entry events.Entry) error {
	if entry.Type != events.TypeBookingCreated {
		return nil
	}
	if n.sender == nil || len(n.recipients) == 0 {
		n.logger.Debug("notify: no operator email configured, skipping", "booking_id", entry.AggregateID)
		return nil
	}
	var evt events.BookingCreatedV1
	if err := entry.Decode(&evt); err != nil {
		return err
	}

	msg := EmailMessage{
		Subject: fmt.Sprintf("New booking: %s (%s)", valueOrNA(evt.SubjectName), evt.BookingID),
		Body:    FormatBookingSummary(evt),
		HTML:    FormatBookingSummaryHTML(evt),
	}
	var errs []error
	for _, to := range n.recipients {
		msg.To = to
		if err := n.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func schedule(evt events.BookingCreatedV1) string {
	return strings.TrimSpace(evt.Date + " " + evt.Time)
}

// FormatBookingSummary renders a plain-text summary for operators.
func FormatBookingSummary(evt events.BookingCreatedV1) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking ID: %s\n", evt.BookingID)
	fmt.Fprintf(&b, "Service: %s (%s)\n", valueOrNA(evt.SubjectName), evt.ServiceCollection)
	fmt.Fprintf(&b, "Patient: %s\n", valueOrNA(evt.PatientName))
	fmt.Fprintf(&b, "Phone: %s\n", valueOrNA(evt.PatientPhone))
	if s := schedule(evt); s != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", s)
	}
	fmt.Fprintf(&b, "Price: %s\n", evt.Price)
	fmt.Fprintf(&b, "Payment: %s\n", valueOrNA(evt.PaymentMethod))
	fmt.Fprintf(&b, "Status: %s\n", evt.Status)
	fmt.Fprintf(&b, "Created: %s\n", evt.CreatedAt.Format(time.RFC1123))
	return b.String()
}

func row(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">%s</td><td style="padding:6px 12px;">%s</td></tr>`,
		label, html.EscapeString(value))
}

// FormatBookingSummaryHTML renders the email body.
func FormatBookingSummaryHTML(evt events.BookingCreatedV1) string {
	rows := []string{
		row("Booking ID", evt.BookingID),
		row("Service", valueOrNA(evt.SubjectName)),
		row("Patient", valueOrNA(evt.PatientName)),
		fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">Phone</td><td style="padding:6px 12px;"><a href="tel:%s">%s</a></td></tr>`,
			html.EscapeString(evt.PatientPhone), html.EscapeString(valueOrNA(evt.PatientPhone))),
	}
	if s := schedule(evt); s != "" {
		rows = append(rows, row("Schedule", s))
	}
	rows = append(rows,
		row("Price", evt.Price),
		row("Payment", valueOrNA(evt.PaymentMethod)),
		row("Created", evt.CreatedAt.Format(time.RFC1123)),
	)
	return `<div style="font-family:sans-serif;max-width:600px;" dir="auto">
<h2 style="color:#333;">New booking request</h2>
<table style="border-collapse:collapse;width:100%;">
` + strings.Join(rows, "\n") + `
</table>
<p style="color:#666;font-size:12px;">The booking stays pending until it is confirmed in the admin panel.</p>
</div>`
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
