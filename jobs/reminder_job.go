package jobs

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/notifications"
	"gorm.io/gorm"
)

const reminderLead = 60 * time.Minute

var reminderBody = template.Must(template.New("reminder").Parse(
	`<h1>Class Reminder</h1><p>Hi {{.Name}},</p><p>This is a friendly reminder that your class starts at {{.Start}}.</p>{{if .Link}}<p><b>Meeting Link:</b> <a href="{{.Link}}">Join Class</a></p>{{end}}`))

// Reminders e-mails both sides of every confirmed session that starts
// within the next hour. Each booking is stamped with reminded_at before
// sending, so it is reminded at most once whatever the job schedule.
type Reminders struct {
	DB     *gorm.DB
	Mailer notifications.Mailer
	Log    zerolog.Logger
	Now    func() time.Time
}

func NewReminders(db *gorm.DB, mailer notifications.Mailer, log zerolog.Logger) *Reminders {
	return &Reminders{DB: db, Mailer: mailer, Log: log, Now: time.Now}
}

func (r *Reminders) Send(ctx context.Context) error {
	now := r.Now().UTC()
	horizon := now.Add(reminderLead)

	var confirmed []models.Booking
	if err := r.DB.WithContext(ctx).
		Where("status = ? AND booking_type = ? AND reminded_at IS NULL", models.StatusConfirmed, models.BookingScheduled).
		Find(&confirmed).Error; err != nil {
		return fmt.Errorf("error checking for upcoming classes: %w", err)
	}

	sent := 0
	for _, b := range confirmed {
		start := b.ScheduledTime.UTC()
		if !start.After(now) || start.After(horizon) {
			continue
		}
		claimed, err := r.claim(ctx, b, now)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		recipients, err := r.recipients(ctx, b)
		if err != nil {
			r.Log.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("cannot resolve reminder recipients")
			continue
		}
		link := ""
		if b.MeetingLink != nil {
			link = *b.MeetingLink
		}
		for _, p := range recipients {
			var body strings.Builder
			if err := reminderBody.Execute(&body, struct{ Name, Start, Link string }{p.FullName, start.Format(time.Kitchen) + " UTC", link}); err != nil {
				return err
			}
			if err := r.Mailer.Send(ctx, notifications.Email{
				ToEmail: p.Email,
				ToName:  p.FullName,
				Subject: "Reminder: Your Class Starts Within the Hour!",
				HTML:    body.String(),
			}); err != nil {
				r.Log.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("failed to send reminder")
				continue
			}
			sent++
		}
	}
	if sent > 0 {
		r.Log.Info().Int("emails", sent).Msg("class reminders sent")
	}
	return nil
}

// claim stamps reminded_at and reports whether this run won the booking.
func (r *Reminders) claim(ctx context.Context, b models.Booking, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND reminded_at IS NULL", b.ID).
		Update("reminded_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("mark booking reminded: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Reminders) recipients(ctx context.Context, b models.Booking) ([]models.Profile, error) {
	var tutor models.Tutor
	if err := r.DB.WithContext(ctx).Select("id", "user_id").First(&tutor, "id = ?", b.TutorID).Error; err != nil {
		return nil, err
	}
	var profiles []models.Profile
	if err := r.DB.WithContext(ctx).Where("id IN ?", []interface{}{b.StudentID, tutor.UserID}).Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}
