package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"gorm.io/gorm"
)

// Pusher delivers a payload to a user's open realtime connections.
type Pusher interface {
	Push(userID uuid.UUID, payload interface{})
}

type ReceiptGenerator interface {
	Generate(ctx context.Context, bookingID uuid.UUID) (string, error)
}

// Dispatcher turns committed booking events into e-mails, realtime pushes
// and receipts. Nothing it does affects the booking itself.
type Dispatcher struct {
	DB       *gorm.DB
	Mailer   Mailer
	Pusher   Pusher
	Receipts ReceiptGenerator
	Log      zerolog.Logger
}

func NewDispatcher(db *gorm.DB, mailer Mailer, pusher Pusher, receipts ReceiptGenerator, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		DB:       db,
		Mailer:   mailer,
		Pusher:   pusher,
		Receipts: receipts,
		Log:      log.With().Str("component", "notifications").Logger(),
	}
}

type parties struct {
	booking      models.Booking
	student      models.Profile
	tutor        models.Tutor
	tutorProfile models.Profile
}

// Push is the realtime message sent to both sides of a booking.
type Push struct {
	Type          events.EventType `json:"type"`
	BookingID     uuid.UUID        `json:"booking_id"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
}

func (d *Dispatcher) Handle(ctx context.Context, evt events.BookingEvent) error {
	p, err := d.load(ctx, evt.BookingID)
	if err != nil {
		return err
	}

	if d.Pusher != nil {
		push := Push{Type: evt.Type, BookingID: evt.BookingID, Status: evt.Status, PaymentStatus: evt.PaymentStatus}
		d.Pusher.Push(p.student.ID, push)
		d.Pusher.Push(p.tutorProfile.ID, push)
	}

	var errs []error
	if evt.Type == events.BookingCreated && d.Receipts != nil {
		if _, err := d.Receipts.Generate(ctx, evt.BookingID); err != nil {
			errs = append(errs, fmt.Errorf("receipt: %w", err))
		}
	}

	for _, msg := range messages[evt.Type] {
		recipient := p.student
		if msg.to == toTutor {
			recipient = p.tutorProfile
		}
		body, err := render(msg, p.data(recipient, evt))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.Mailer.Send(ctx, Email{
			ToEmail: recipient.Email,
			ToName:  recipient.FullName,
			Subject: msg.subject,
			HTML:    body,
		}); err != nil {
			errs = append(errs, fmt.Errorf("email %s to %s: %w", evt.Type, recipient.ID, err))
			continue
		}
		d.Log.Debug().Str("event_type", string(evt.Type)).Str("to", recipient.Email).Msg("notification sent")
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) load(ctx context.Context, bookingID uuid.UUID) (*parties, error) {
	db := d.DB.WithContext(ctx)
	var p parties
	if err := db.First(&p.booking, "id = ?", bookingID).Error; err != nil {
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if err := db.First(&p.student, "id = ?", p.booking.StudentID).Error; err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if err := db.First(&p.tutor, "id = ?", p.booking.TutorID).Error; err != nil {
		return nil, fmt.Errorf("load tutor: %w", err)
	}
	if err := db.First(&p.tutorProfile, "id = ?", p.tutor.UserID).Error; err != nil {
		return nil, fmt.Errorf("load tutor profile: %w", err)
	}
	return &p, nil
}

func (p *parties) data(recipient models.Profile, evt events.BookingEvent) messageData {
	b := p.booking
	data := messageData{
		RecipientName: recipient.FullName,
		StudentName:   p.student.FullName,
		TutorName:     p.tutorProfile.FullName,
		Subject:       p.tutor.Subject,
		SessionTime:   b.ScheduledTime.UTC().Format("Mon 2 Jan 2006, 15:04 MST"),
		Amount:        fmt.Sprintf("%s %.2f", b.Currency, b.Amount),
		Reason:        evt.Message,
	}
	if b.MeetingLink != nil {
		data.MeetingLink = *b.MeetingLink
	}
	switch {
	case evt.Type == events.BookingRejected && b.RejectionReason != nil:
		data.Reason = *b.RejectionReason
	case evt.Type == events.BookingDisputed && b.DisputeReason != nil:
		data.Reason = *b.DisputeReason
	}
	return data
}
