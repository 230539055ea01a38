package notifications

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/tutorhub/api/events"
)

type audience int

const (
	toStudent audience = iota
	toTutor
)

type messageData struct {
	RecipientName string
	StudentName   string
	TutorName     string
	Subject       string
	SessionTime   string
	MeetingLink   string
	Reason        string
	Amount        string
}

type messageTemplate struct {
	to      audience
	subject string
	body    *template.Template
}

func tmpl(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(body))
}

var messages = map[events.EventType][]messageTemplate{
	events.BookingCreated: {
		{toTutor, "New booking request", tmpl("created-tutor",
			`<h1>New booking request</h1><p>Hi {{.RecipientName}},</p><p>{{.StudentName}} booked a {{.Subject}} session for {{.SessionTime}}. Accept it from your dashboard before it expires.</p>`)},
		{toStudent, "Booking received", tmpl("created-student",
			`<h1>Booking received</h1><p>Hi {{.RecipientName}},</p><p>Your payment of {{.Amount}} was received. {{.TutorName}} has been asked to confirm your session for {{.SessionTime}}.</p>`)},
	},
	events.BookingConfirmed: {
		{toStudent, "Your session is confirmed", tmpl("confirmed",
			`<h1>Session confirmed</h1><p>Hi {{.RecipientName}},</p><p>{{.TutorName}} accepted your session for {{.SessionTime}}.</p><p><b>Meeting Link:</b> <a href="{{.MeetingLink}}">Join Class</a></p>`)},
	},
	events.BookingRejected: {
		{toStudent, "Your booking was declined", tmpl("rejected",
			`<h1>Booking declined</h1><p>Hi {{.RecipientName}},</p><p>Your session with {{.TutorName}} will not go ahead: {{.Reason}}</p><p>Your payment is being refunded.</p>`)},
	},
	events.BookingCancelled: {
		{toTutor, "A booking was cancelled", tmpl("cancelled",
			`<h1>Booking cancelled</h1><p>Hi {{.RecipientName}},</p><p>{{.StudentName}} cancelled the session planned for {{.SessionTime}}.</p>`)},
	},
	events.BookingExpired: {
		{toStudent, "Your booking request expired", tmpl("expired-student",
			`<h1>Booking expired</h1><p>Hi {{.RecipientName}},</p><p>{{.TutorName}} did not respond in time, so your booking was cancelled and your payment is being refunded.</p>`)},
		{toTutor, "You missed a booking request", tmpl("expired-tutor",
			`<h1>Booking expired</h1><p>Hi {{.RecipientName}},</p><p>The request from {{.StudentName}} for {{.SessionTime}} expired without a response.</p>`)},
	},
	events.BookingCompleted: {
		{toStudent, "How was your session?", tmpl("completed",
			`<h1>Session complete</h1><p>Hi {{.RecipientName}},</p><p>Your session with {{.TutorName}} is complete. Leave a rating from your dashboard.</p>`)},
	},
	events.BookingDisputed: {
		{toTutor, "A session was disputed", tmpl("disputed",
			`<h1>Session disputed</h1><p>Hi {{.RecipientName}},</p><p>{{.StudentName}} disputed the session of {{.SessionTime}}: {{.Reason}}</p><p>An administrator will review it.</p>`)},
	},
	events.DisputeResolved: {
		{toStudent, "Your dispute was resolved", tmpl("resolved-student",
			`<h1>Dispute resolved</h1><p>Hi {{.RecipientName}},</p><p>Your dispute about the session with {{.TutorName}} has been resolved. Check your dashboard for the outcome.</p>`)},
		{toTutor, "A dispute was resolved", tmpl("resolved-tutor",
			`<h1>Dispute resolved</h1><p>Hi {{.RecipientName}},</p><p>The dispute raised by {{.StudentName}} has been resolved.</p>`)},
	},
	events.RefundSucceeded: {
		{toStudent, "Your refund was processed", tmpl("refunded",
			`<h1>Refund processed</h1><p>Hi {{.RecipientName}},</p><p>The refund for your session with {{.TutorName}} has been sent to your original payment method.</p>`)},
	},
	events.ReviewSubmitted: {
		{toTutor, "You received a new review", tmpl("reviewed",
			`<h1>New review</h1><p>Hi {{.RecipientName}},</p><p>{{.StudentName}} rated your {{.Subject}} session.</p>`)},
	},
}

func render(msg messageTemplate, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := msg.body.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", msg.body.Name(), err)
	}
	return buf.String(), nil
}
