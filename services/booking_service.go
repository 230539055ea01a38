package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/cache"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
	"github.com/tutorhub/api/utils"
	"gorm.io/gorm"
)

const defaultRejectionReason = "Tutor unavailable."

// BookingPolicy holds the lifecycle thresholds and pricing defaults.
type BookingPolicy struct {
	LiveExpiry      time.Duration
	ScheduledExpiry time.Duration
	NoShowGrace     time.Duration
	Currency        string
	DefaultPrice    float64
	CallbackURL     string
}

// Expired reports whether a pending booking has waited past its threshold.
func (p BookingPolicy) Expired(b *models.Booking, now time.Time) bool {
	return b.Status == models.StatusPending && now.After(b.ExpiresAt(p.LiveExpiry, p.ScheduledExpiry))
}

func (p BookingPolicy) Price(t *models.Tutor) float64 {
	if t.PricePerHour > 0 {
		return t.PricePerHour
	}
	return p.DefaultPrice
}

func (p BookingPolicy) PriceMinor(t *models.Tutor) int64 {
	return int64(math.Round(p.Price(t) * 100))
}

type BookingService struct {
	DB      *gorm.DB
	Gateway payments.Gateway
	Refunds *RefundService
	Events  events.Publisher
	Policy  BookingPolicy
	Log     zerolog.Logger
	Now     func() time.Time

	// TutorCache holds cached directory listings, which embed ratings.
	TutorCache cache.Store
}

func NewBookingService(db *gorm.DB, gateway payments.Gateway, refunds *RefundService, pub events.Publisher, policy BookingPolicy, log zerolog.Logger) *BookingService {
	return &BookingService{
		DB:      db,
		Gateway: gateway,
		Refunds: refunds,
		Events:  pub,
		Policy:  policy,
		Log:     log.With().Str("component", "bookings").Logger(),
		Now:     time.Now,
	}
}

type BookingDraft struct {
	TutorID          uuid.UUID          `json:"tutor_id" validate:"required"`
	BookingType      models.BookingType `json:"booking_type" validate:"required,oneof=live scheduled"`
	ScheduledTime    *time.Time         `json:"scheduled_time"`
	TopicDescription string             `json:"topic_description" validate:"required,max=2000"`
	GuestEmails      string             `json:"guest_emails" validate:"max=1000"`
}

// bookingMetadata is the draft as it travels in gateway metadata.
type bookingMetadata struct {
	StudentID        string `json:"student_id"`
	TutorID          string `json:"tutor_id"`
	BookingType      string `json:"booking_type"`
	ScheduledTime    string `json:"scheduled_time,omitempty"`
	TopicDescription string `json:"topic_description"`
	GuestEmails      string `json:"guest_emails,omitempty"`
}

func (m bookingMetadata) draft() (*BookingDraft, error) {
	tutorID, err := uuid.Parse(m.TutorID)
	if err != nil {
		return nil, NewValidationError("tutor_id", "payment metadata has no valid tutor")
	}
	d := &BookingDraft{
		TutorID:          tutorID,
		BookingType:      models.BookingType(m.BookingType),
		TopicDescription: m.TopicDescription,
		GuestEmails:      m.GuestEmails,
	}
	if m.ScheduledTime != "" {
		t, err := time.Parse(time.RFC3339, m.ScheduledTime)
		if err != nil {
			return nil, NewValidationError("scheduled_time", "payment metadata has an invalid time")
		}
		d.ScheduledTime = &t
	}
	return d, nil
}

func (d *BookingDraft) validate(now time.Time, requireFuture bool) error {
	if d.TutorID == uuid.Nil {
		return NewValidationError("tutor_id", "is required")
	}
	if !d.BookingType.Valid() {
		return NewValidationError("booking_type", "must be one of live scheduled")
	}
	d.TopicDescription = strings.TrimSpace(d.TopicDescription)
	if d.TopicDescription == "" {
		return NewValidationError("topic_description", "is required")
	}
	if d.BookingType == models.BookingLive {
		t := now
		d.ScheduledTime = &t
		return nil
	}
	if d.ScheduledTime == nil || d.ScheduledTime.IsZero() {
		return NewValidationError("scheduled_time", "is required for scheduled sessions")
	}
	if requireFuture && !d.ScheduledTime.After(now) {
		return NewValidationError("scheduled_time", "must be in the future")
	}
	return nil
}

type CheckoutResult struct {
	AuthorizationURL string  `json:"authorization_url"`
	AccessCode       string  `json:"access_code"`
	Reference        string  `json:"reference"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
}

// TransitionResult is a booking after a status change, together with the
// refund it triggered, if any.
type TransitionResult struct {
	Booking *models.Booking `json:"booking"`
	Refund  *models.Refund  `json:"refund,omitempty"`
}

func (s *BookingService) now() time.Time {
	return s.Now().UTC()
}

// Checkout initializes a gateway transaction for a booking draft. The draft
// travels in the transaction metadata so the booking can be created from
// the verified payment alone.
func (s *BookingService) Checkout(ctx context.Context, studentID uuid.UUID, draft BookingDraft) (*CheckoutResult, error) {
	now := s.now()
	if err := draft.validate(now, true); err != nil {
		return nil, err
	}

	var student models.Profile
	if err := s.DB.WithContext(ctx).First(&student, "id = ?", studentID).Error; err != nil {
		return nil, notFound(err, ErrProfileNotFound)
	}
	tutor, err := s.tutorByID(s.DB.WithContext(ctx), draft.TutorID)
	if err != nil {
		return nil, err
	}

	reference, err := utils.GenerateUniqueReference(s.DB.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("generate reference: %w", err)
	}

	meta := bookingMetadata{
		StudentID:        studentID.String(),
		TutorID:          tutor.ID.String(),
		BookingType:      string(draft.BookingType),
		TopicDescription: draft.TopicDescription,
		GuestEmails:      draft.GuestEmails,
	}
	if draft.BookingType == models.BookingScheduled {
		meta.ScheduledTime = draft.ScheduledTime.UTC().Format(time.RFC3339)
	}

	req := payments.InitializeRequest{
		Email:       student.Email,
		AmountMinor: s.Policy.PriceMinor(tutor),
		Currency:    s.Policy.Currency,
		Reference:   reference,
		CallbackURL: s.Policy.CallbackURL,
		Metadata:    meta,
	}
	if tutor.PayoutsEnabled && tutor.PaymentSubaccountCode != nil {
		req.Subaccount = *tutor.PaymentSubaccountCode
	}

	checkout, err := s.Gateway.InitializeTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        reference,
		Amount:           s.Policy.Price(tutor),
		Currency:         s.Policy.Currency,
	}, nil
}

// CreateFromPayment verifies the payment behind reference and records the
// booking it paid for. Calling it again with the same reference returns the
// existing booking with created=false.
func (s *BookingService) CreateFromPayment(ctx context.Context, studentID uuid.UUID, reference string, fallback *BookingDraft) (*models.Booking, bool, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, false, NewValidationError("reference", "is required")
	}

	existing, err := s.byReference(s.DB.WithContext(ctx), reference)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.StudentID != studentID {
			return nil, false, ErrForbidden
		}
		return existing, false, nil
	}

	txn, err := s.Gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, false, err
	}
	return s.createFromTransaction(ctx, txn, &studentID, fallback)
}

// HandleChargeSuccess records the booking for a charge.success webhook.
// Charges without booking metadata are left for the client to claim.
func (s *BookingService) HandleChargeSuccess(ctx context.Context, txn *payments.Transaction) (*models.Booking, error) {
	existing, err := s.byReference(s.DB.WithContext(ctx), txn.Reference)
	if err != nil || existing != nil {
		return existing, err
	}

	var meta bookingMetadata
	if err := txn.DecodeMetadata(&meta); err != nil || meta.TutorID == "" || meta.StudentID == "" {
		s.Log.Info().Str("reference", txn.Reference).Msg("charge has no booking metadata, waiting for client confirmation")
		return nil, nil
	}

	booking, _, err := s.createFromTransaction(ctx, txn, nil, nil)
	return booking, err
}

func (s *BookingService) createFromTransaction(ctx context.Context, txn *payments.Transaction, studentID *uuid.UUID, fallback *BookingDraft) (*models.Booking, bool, error) {
	if !txn.Succeeded() {
		return nil, false, fmt.Errorf("%w: transaction status is %q", ErrPaymentNotVerified, txn.Status)
	}

	var meta bookingMetadata
	if err := txn.DecodeMetadata(&meta); err != nil {
		s.Log.Warn().Err(err).Str("reference", txn.Reference).Msg("ignoring unreadable payment metadata")
	}

	owner, err := resolveStudent(meta.StudentID, studentID)
	if err != nil {
		return nil, false, err
	}

	var draft *BookingDraft
	if meta.TutorID != "" {
		if draft, err = meta.draft(); err != nil {
			return nil, false, err
		}
	} else if fallback != nil {
		d := *fallback
		draft = &d
	} else {
		return nil, false, NewValidationError("tutor_id", "booking details are required")
	}

	now := s.now()
	if err := draft.validate(now, false); err != nil {
		return nil, false, err
	}

	tutor, err := s.tutorByID(s.DB.WithContext(ctx), draft.TutorID)
	if err != nil {
		return nil, false, err
	}
	if expected := s.Policy.PriceMinor(tutor); txn.AmountMinor < expected {
		return nil, false, fmt.Errorf("%w: paid %d, expected %d", ErrPaymentNotVerified, txn.AmountMinor, expected)
	}
	if !strings.EqualFold(txn.Currency, s.Policy.Currency) {
		return nil, false, fmt.Errorf("%w: currency %s", ErrPaymentNotVerified, txn.Currency)
	}

	booking := models.Booking{
		StudentID:        owner,
		TutorID:          tutor.ID,
		Status:           models.StatusPending,
		BookingType:      draft.BookingType,
		ScheduledTime:    draft.ScheduledTime.UTC(),
		PaymentStatus:    models.PaymentPaid,
		PaymentIntentID:  txn.Reference,
		Amount:           float64(txn.AmountMinor) / 100,
		Currency:         strings.ToUpper(txn.Currency),
		TopicDescription: draft.TopicDescription,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if g := strings.TrimSpace(draft.GuestEmails); g != "" {
		booking.GuestEmails = &g
	}

	var result *models.Booking
	created := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.byReference(tx, txn.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}
		if err := tx.Create(&booking).Error; err != nil {
			return err
		}
		result = &booking
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, lookupErr := s.byReference(s.DB.WithContext(ctx), txn.Reference)
		if lookupErr != nil || existing == nil {
			return nil, false, fmt.Errorf("create booking: %w", err)
		}
		result, created, err = existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create booking: %w", err)
	}
	if result.StudentID != owner {
		return nil, false, ErrForbidden
	}

	if created {
		s.Log.Info().Str("booking_id", result.ID.String()).Str("reference", txn.Reference).Msg("booking created from verified payment")
		s.publish(ctx, events.BookingCreated, result)
	}
	return result, created, nil
}

func resolveStudent(fromMetadata string, caller *uuid.UUID) (uuid.UUID, error) {
	if fromMetadata != "" {
		id, err := uuid.Parse(fromMetadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: invalid student in metadata", ErrPaymentNotVerified)
		}
		if caller != nil && *caller != id {
			return uuid.Nil, ErrForbidden
		}
		return id, nil
	}
	if caller == nil {
		return uuid.Nil, fmt.Errorf("%w: payment has no student", ErrPaymentNotVerified)
	}
	return *caller, nil
}

func (s *BookingService) Accept(ctx context.Context, tutorUserID, bookingID uuid.UUID, meetingLink string) (*models.Booking, error) {
	link := utils.EnsureProtocol(meetingLink)
	if link == "" {
		return nil, NewValidationError("meeting_link", "is required")
	}

	now := s.now()
	var booking *models.Booking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadForTutor(tx, tutorUserID, bookingID)
		if err != nil {
			return err
		}
		if s.Policy.Expired(b, now) {
			return ErrBookingExpired
		}
		if err := s.transition(tx, b, models.StatusConfirmed, map[string]interface{}{"meeting_link": link}); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking, err = s.reload(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingConfirmed, booking)
	return booking, nil
}

func (s *BookingService) Reject(ctx context.Context, tutorUserID, bookingID uuid.UUID, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectionReason
	}
	load := func(tx *gorm.DB) (*models.Booking, error) {
		b, err := s.loadForTutor(tx, tutorUserID, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != models.StatusPending {
			return nil, fmt.Errorf("%w: cannot reject a %s booking", ErrInvalidTransition, b.Status)
		}
		return b, nil
	}
	return s.transitionWithRefund(ctx, load, models.StatusRejected,
		map[string]interface{}{"rejection_reason": reason}, "Rejected by tutor: "+reason, events.BookingRejected)
}

func (s *BookingService) Cancel(ctx context.Context, studentID, bookingID uuid.UUID) (*TransitionResult, error) {
	load := func(tx *gorm.DB) (*models.Booking, error) {
		return s.loadForStudent(tx, studentID, bookingID)
	}
	return s.transitionWithRefund(ctx, load, models.StatusCancelled, nil, "Cancelled by student", events.BookingCancelled)
}

// Complete closes a confirmed session. It is only possible once the
// session has started.
func (s *BookingService) Complete(ctx context.Context, tutorUserID, bookingID uuid.UUID) (*models.Booking, error) {
	now := s.now()
	var id uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadForTutor(tx, tutorUserID, bookingID)
		if err != nil {
			return err
		}
		if b.Status == models.StatusConfirmed && now.Before(b.ScheduledTime) {
			return ErrTooEarly
		}
		id = b.ID
		return s.transition(tx, b, models.StatusCompleted, nil)
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingCompleted, booking)
	return booking, nil
}

func (s *BookingService) Dispute(ctx context.Context, studentID, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, NewValidationError("reason", "is required")
	}

	var id uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadForStudent(tx, studentID, bookingID)
		if err != nil {
			return err
		}
		id = b.ID
		return s.transition(tx, b, models.StatusDisputed, map[string]interface{}{"dispute_reason": reason})
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingDisputed, booking)
	return booking, nil
}

// ReportNoShow lets the student reject a confirmed session the tutor never
// joined. It opens once the grace period after the start time has passed.
func (s *BookingService) ReportNoShow(ctx context.Context, studentID, bookingID uuid.UUID) (*TransitionResult, error) {
	now := s.now()
	load := func(tx *gorm.DB) (*models.Booking, error) {
		b, err := s.loadForStudent(tx, studentID, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != models.StatusConfirmed {
			return nil, fmt.Errorf("%w: no-show can only be reported for confirmed sessions", ErrInvalidTransition)
		}
		if now.Before(b.ScheduledTime.Add(s.Policy.NoShowGrace)) {
			return nil, ErrTooEarly
		}
		return b, nil
	}
	return s.transitionWithRefund(ctx, load, models.StatusRejected,
		map[string]interface{}{"rejection_reason": "Tutor did not attend the session."}, "Tutor no-show", events.BookingRejected)
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// SubmitReview records the student's rating. A confirmed booking is
// completed by its first review, and the tutor's average is recomputed in
// the same transaction.
func (s *BookingService) SubmitReview(ctx context.Context, studentID, bookingID uuid.UUID, in ReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, NewValidationError("rating", "must be between 1 and 5")
	}

	var review models.Review
	completedNow := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadForStudent(tx, studentID, bookingID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Review{}).Where("booking_id = ?", b.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyReviewed
		}

		switch b.Status {
		case models.StatusConfirmed:
			if err := s.transition(tx, b, models.StatusCompleted, nil); err != nil {
				return err
			}
			completedNow = true
		case models.StatusCompleted:
		default:
			return fmt.Errorf("%w: cannot review a %s booking", ErrInvalidTransition, b.Status)
		}

		review = models.Review{
			BookingID: b.ID,
			StudentID: studentID,
			TutorID:   b.TutorID,
			Rating:    in.Rating,
			Comment:   strings.TrimSpace(in.Comment),
		}
		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyReviewed
			}
			return err
		}

		var avg float64
		if err := tx.Model(&models.Review{}).Where("tutor_id = ?", b.TutorID).Select("COALESCE(AVG(rating), 5)").Scan(&avg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Tutor{}).Where("id = ?", b.TutorID).Update("rating", math.Round(avg*100)/100).Error
	})
	if err != nil {
		return nil, err
	}

	invalidateTutors(ctx, s.TutorCache, s.Log)

	booking, err := s.reload(ctx, bookingID)
	if err == nil {
		if completedNow {
			s.publish(ctx, events.BookingCompleted, booking)
		}
		s.publish(ctx, events.ReviewSubmitted, booking)
	}
	return &review, nil
}

// ResolveDispute settles a disputed booking. refundMinor of zero releases
// the funds to the tutor; anything else refunds the student, fully once it
// reaches the booking amount.
func (s *BookingService) ResolveDispute(ctx context.Context, bookingID uuid.UUID, refundMinor int64) (*TransitionResult, error) {
	if refundMinor < 0 {
		return nil, NewValidationError("refund_amount", "must not be negative")
	}

	var booking *models.Booking
	var refund *models.Refund
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.load(tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.StatusDisputed {
			return fmt.Errorf("%w: booking is %s, not disputed", ErrInvalidTransition, b.Status)
		}
		if b.Resolution != nil {
			return ErrDisputeResolved
		}

		resolution := "released"
		if refundMinor > 0 {
			if !b.PaymentStatus.Refundable() {
				return fmt.Errorf("%w: payment is %s", ErrRefundAlreadyClaimed, b.PaymentStatus)
			}
			resolution = string(models.PaymentRefunded)
			if refundMinor < b.AmountMinor() {
				resolution = string(models.PaymentPartialRefund)
			}
		}
		if err := s.update(tx, b, map[string]interface{}{"resolution": resolution}); err != nil {
			return err
		}

		if refundMinor > 0 {
			amount := refundMinor
			if amount >= b.AmountMinor() {
				amount = 0
			}
			if refund, err = s.Refunds.Claim(tx, b, amount, "Dispute resolution"); err != nil {
				return err
			}
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, booking.ID, refund, events.DisputeResolved)
}

// ExpirePending cancels and refunds every paid pending booking whose tutor
// did not answer in time. Each booking is refunded at most once no matter
// how often or how concurrently the sweep runs.
func (s *BookingService) ExpirePending(ctx context.Context) (int, error) {
	now := s.now()

	var candidates []models.Booking
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND payment_status = ?", models.StatusPending, models.PaymentPaid).
		Order("created_at asc").
		Find(&candidates).Error; err != nil {
		return 0, fmt.Errorf("load pending bookings: %w", err)
	}

	expired := 0
	for i := range candidates {
		if !s.Policy.Expired(&candidates[i], now) {
			continue
		}
		id := candidates[i].ID
		load := func(tx *gorm.DB) (*models.Booking, error) {
			b, err := s.load(tx, id)
			if err != nil {
				return nil, err
			}
			if !s.Policy.Expired(b, now) {
				return nil, fmt.Errorf("%w: booking is no longer expirable", ErrBookingConflict)
			}
			return b, nil
		}
		_, err := s.transitionWithRefund(ctx, load, models.StatusCancelled,
			map[string]interface{}{"rejection_reason": "Expired: the tutor did not respond in time."},
			"Booking request expired", events.BookingExpired)
		if err != nil {
			if errors.Is(err, ErrBookingConflict) || errors.Is(err, ErrInvalidTransition) {
				continue
			}
			s.Log.Error().Err(err).Str("booking_id", id.String()).Msg("failed to expire booking")
			continue
		}
		expired++
	}
	if expired > 0 {
		s.Log.Info().Int("count", expired).Msg("expired pending bookings")
	}
	return expired, nil
}

type BookingFilter struct {
	From   *time.Time
	To     *time.Time
	Status models.BookingStatus
}

func (s *BookingService) List(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	q := s.DB.WithContext(ctx).Model(&models.Booking{})
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var bookings []models.Booking
	if err := q.Order("created_at desc").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

// transitionWithRefund moves a booking and claims its refund in one
// transaction, then asks the gateway exactly once. A failed gateway call
// leaves a failed ledger entry for the retry job; the transition stands.
func (s *BookingService) transitionWithRefund(ctx context.Context, load func(tx *gorm.DB) (*models.Booking, error), to models.BookingStatus, fields map[string]interface{}, reason string, evt events.EventType) (*TransitionResult, error) {
	var id uuid.UUID
	var refund *models.Refund
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := load(tx)
		if err != nil {
			return err
		}
		if err := s.transition(tx, b, to, fields); err != nil {
			return err
		}
		id = b.ID
		if !b.PaymentStatus.Refundable() {
			return nil
		}
		refund, err = s.Refunds.Claim(tx, b, 0, reason)
		if errors.Is(err, ErrRefundAlreadyClaimed) {
			refund = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, id, refund, evt)
}

func (s *BookingService) finish(ctx context.Context, id uuid.UUID, refund *models.Refund, evt events.EventType) (*TransitionResult, error) {
	booking, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evt, booking)

	if refund != nil {
		executed, err := s.Refunds.Execute(ctx, refund.ID)
		if err != nil {
			s.Log.Warn().Err(err).Str("booking_id", id.String()).Msg("refund did not complete, it will be retried")
		}
		if executed != nil {
			refund = executed
		}
		if booking, err = s.reload(ctx, id); err != nil {
			return nil, err
		}
	}
	return &TransitionResult{Booking: booking, Refund: refund}, nil
}

// transition is the only place booking status changes. The update is
// conditional on the status and version that were read, so a concurrent
// writer makes it fail with ErrBookingConflict instead of being overwritten.
func (s *BookingService) transition(tx *gorm.DB, b *models.Booking, to models.BookingStatus, fields map[string]interface{}) error {
	if !models.CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	if err := s.update(tx, b, updates); err != nil {
		return err
	}
	b.Status = to
	return nil
}

func (s *BookingService) update(tx *gorm.DB, b *models.Booking, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"version":    gorm.Expr("version + 1"),
		"updated_at": s.now(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND status = ? AND version = ?", b.ID, b.Status, b.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBookingConflict
	}
	b.Version++
	return nil
}

func (s *BookingService) load(tx *gorm.DB, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := tx.First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	return &b, nil
}

func (s *BookingService) loadForStudent(tx *gorm.DB, studentID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.load(tx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.StudentID != studentID {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *BookingService) loadForTutor(tx *gorm.DB, tutorUserID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.load(tx, bookingID)
	if err != nil {
		return nil, err
	}
	var tutor models.Tutor
	if err := tx.Select("id").First(&tutor, "user_id = ?", tutorUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if b.TutorID != tutor.ID {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *BookingService) reload(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.load(s.DB.WithContext(ctx), id)
}

func (s *BookingService) byReference(tx *gorm.DB, reference string) (*models.Booking, error) {
	var b models.Booking
	err := tx.Where("payment_intent_id = ?", reference).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BookingService) tutorByID(tx *gorm.DB, id uuid.UUID) (*models.Tutor, error) {
	var t models.Tutor
	if err := tx.First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrTutorNotFound)
	}
	return &t, nil
}

func (s *BookingService) publish(ctx context.Context, t events.EventType, b *models.Booking) {
	if s.Events == nil {
		return
	}
	evt := events.NewBookingEvent(t, b.ID, b.StudentID, b.TutorID, string(b.Status), string(b.PaymentStatus))
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.Log.Warn().Err(err).Str("event_type", string(t)).Str("booking_id", b.ID.String()).Msg("failed to publish booking event")
	}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
