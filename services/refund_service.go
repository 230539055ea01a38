package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
	"gorm.io/gorm"
)

// pendingGrace is how long a claimed refund may wait for its first gateway
// call before the retry job picks it up.
const pendingGrace = time.Minute

type RefundService struct {
	DB          *gorm.DB
	Gateway     payments.Gateway
	Events      events.Publisher
	MaxAttempts int
	Log         zerolog.Logger
	Now         func() time.Time
}

func NewRefundService(db *gorm.DB, gateway payments.Gateway, pub events.Publisher, maxAttempts int, log zerolog.Logger) *RefundService {
	return &RefundService{
		DB:          db,
		Gateway:     gateway,
		Events:      pub,
		MaxAttempts: maxAttempts,
		Log:         log.With().Str("component", "refunds").Logger(),
		Now:         time.Now,
	}
}

func (s *RefundService) now() time.Time {
	return s.Now().UTC()
}

// Claim records the intent to refund b inside tx. amountMinor of zero, or
// anything at or above the booking amount, claims a full refund. The ledger
// allows one claim per booking; a second returns the first together with
// ErrRefundAlreadyClaimed.
func (s *RefundService) Claim(tx *gorm.DB, b *models.Booking, amountMinor int64, reason string) (*models.Refund, error) {
	var existing models.Refund
	err := tx.Where("booking_id = ?", b.ID).First(&existing).Error
	if err == nil {
		return &existing, ErrRefundAlreadyClaimed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check refund ledger: %w", err)
	}

	kind := models.RefundFull
	total := b.AmountMinor()
	if amountMinor > 0 && amountMinor < total {
		kind = models.RefundPartial
	} else {
		amountMinor = total
	}

	now := s.now()
	refund := models.Refund{
		BookingID:   b.ID,
		Reference:   b.PaymentIntentID,
		AmountMinor: amountMinor,
		Kind:        kind,
		Status:      models.RefundPending,
		Reason:      reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrRefundAlreadyClaimed
		}
		return nil, fmt.Errorf("claim refund: %w", err)
	}
	return &refund, nil
}

// Execute makes one gateway call for a claimed refund and records the
// outcome. On gateway failure it returns the failed entry together with the
// *payments.GatewayError.
func (s *RefundService) Execute(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	return s.execute(ctx, refundID, false)
}

// Retry re-runs a failed refund on behalf of an admin, ignoring the
// attempt limit.
func (s *RefundService) Retry(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	return s.execute(ctx, refundID, true)
}

func (s *RefundService) execute(ctx context.Context, refundID uuid.UUID, force bool) (*models.Refund, error) {
	var r models.Refund
	if err := s.DB.WithContext(ctx).First(&r, "id = ?", refundID).Error; err != nil {
		return nil, notFound(err, ErrRefundNotFound)
	}

	switch r.Status {
	case models.RefundSucceeded:
		return &r, nil
	case models.RefundProcessing:
		return &r, ErrRefundInProgress
	}
	if !force && r.Attempts >= s.MaxAttempts {
		return &r, ErrRefundNotRetryable
	}

	// Take the entry so that concurrent executions cannot both reach the
	// gateway.
	res := s.DB.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ? AND attempts = ?", r.ID, r.Status, r.Attempts).
		Updates(map[string]interface{}{
			"status":     models.RefundProcessing,
			"attempts":   r.Attempts + 1,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("take refund: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &r, ErrRefundInProgress
	}
	r.Status = models.RefundProcessing
	r.Attempts++

	req := payments.RefundRequest{Reference: r.Reference, Reason: r.Reason}
	if r.Kind == models.RefundPartial {
		req.AmountMinor = r.AmountMinor
	}
	result, err := s.Gateway.Refund(ctx, req)
	if err != nil {
		if markErr := s.markFailed(ctx, &r, err.Error()); markErr != nil {
			return &r, errors.Join(err, markErr)
		}
		return &r, err
	}

	gatewayID := ""
	if result != nil && result.ID != 0 {
		gatewayID = strconv.FormatInt(result.ID, 10)
	}
	switch {
	case result != nil && result.Settled():
		err = s.markSucceeded(ctx, &r, gatewayID)
	case result != nil && result.Failed():
		err = s.markFailed(ctx, &r, "gateway rejected refund")
	default:
		err = s.markQueued(ctx, &r, gatewayID)
	}
	if err != nil {
		return &r, err
	}
	return &r, nil
}

// markQueued records that the gateway accepted the refund but has not
// settled it. The entry stays processing until a refund.processed or
// refund.failed notice arrives, and the booking keeps its payment status.
func (s *RefundService) markQueued(ctx context.Context, r *models.Refund, gatewayID string) error {
	updates := map[string]interface{}{"updated_at": s.now()}
	if gatewayID != "" {
		updates["gateway_refund_id"] = gatewayID
	}
	err := s.DB.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ?", r.ID, models.RefundProcessing).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("record queued refund: %w", err)
	}
	if gatewayID != "" {
		r.GatewayRefundID = &gatewayID
	}
	s.Log.Info().Str("refund_id", r.ID.String()).Str("gateway_refund_id", gatewayID).Msg("refund queued by gateway")
	return nil
}

// markSucceeded closes the ledger entry and moves the booking's payment
// status forward. Repeated calls are harmless.
func (s *RefundService) markSucceeded(ctx context.Context, r *models.Refund, gatewayID string) error {
	now := s.now()
	var booking models.Booking
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       models.RefundSucceeded,
			"processed_at": now,
			"last_error":   nil,
			"updated_at":   now,
		}
		if gatewayID != "" {
			updates["gateway_refund_id"] = gatewayID
		}
		res := tx.Model(&models.Refund{}).
			Where("id = ? AND status <> ?", r.ID, models.RefundSucceeded).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0

		if err := tx.First(&booking, "id = ?", r.BookingID).Error; err != nil {
			return err
		}
		target := models.PaymentRefunded
		if r.Kind == models.RefundPartial {
			target = models.PaymentPartialRefund
		}
		if !models.CanTransitionPayment(booking.PaymentStatus, target) {
			return nil
		}
		if err := tx.Model(&models.Booking{}).
			Where("id = ? AND payment_status = ?", booking.ID, booking.PaymentStatus).
			Updates(map[string]interface{}{
				"payment_status": target,
				"version":        gorm.Expr("version + 1"),
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
		booking.PaymentStatus = target
		return nil
	})
	if err != nil {
		return fmt.Errorf("record refund success: %w", err)
	}

	r.Status = models.RefundSucceeded
	r.ProcessedAt = &now
	r.LastError = nil
	if gatewayID != "" {
		r.GatewayRefundID = &gatewayID
	}
	if changed {
		s.Log.Info().Str("refund_id", r.ID.String()).Str("booking_id", r.BookingID.String()).Int64("amount_minor", r.AmountMinor).Msg("refund succeeded")
		s.publish(ctx, events.RefundSucceeded, &booking, "")
	}
	return nil
}

func (s *RefundService) markFailed(ctx context.Context, r *models.Refund, reason string) error {
	res := s.DB.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status <> ?", r.ID, models.RefundSucceeded).
		Updates(map[string]interface{}{
			"status":     models.RefundFailed,
			"last_error": reason,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("record refund failure: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	r.Status = models.RefundFailed
	r.LastError = &reason

	s.Log.Warn().Str("refund_id", r.ID.String()).Int("attempts", r.Attempts).Str("error", reason).Msg("refund failed")
	var booking models.Booking
	if err := s.DB.WithContext(ctx).First(&booking, "id = ?", r.BookingID).Error; err == nil {
		s.publish(ctx, events.RefundFailed, &booking, reason)
	}
	return nil
}

// RetryDue re-runs every refund that failed, or was claimed but never sent,
// and still has attempts left. It returns how many settled; refunds the
// gateway only queued are not counted.
func (s *RefundService) RetryDue(ctx context.Context) (int, error) {
	now := s.now()
	var due []models.Refund
	if err := s.DB.WithContext(ctx).
		Where("status IN ? AND attempts < ?", []models.RefundStatus{models.RefundFailed, models.RefundPending}, s.MaxAttempts).
		Order("created_at asc").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("load due refunds: %w", err)
	}

	succeeded := 0
	for i := range due {
		r := due[i]
		if r.Status == models.RefundPending && now.Sub(r.UpdatedAt) < pendingGrace {
			continue
		}
		out, err := s.Execute(ctx, r.ID)
		if err != nil {
			continue
		}
		if out.Status == models.RefundSucceeded {
			succeeded++
		}
	}
	return succeeded, nil
}

// RefundByReference fully refunds the booking that owns a payment
// reference, through the ledger.
func (s *RefundService) RefundByReference(ctx context.Context, reference, reason string) (*models.Refund, error) {
	if reference == "" {
		return nil, NewValidationError("reference", "is required")
	}
	if reason == "" {
		reason = "Refund issued by admin"
	}

	var refund *models.Refund
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Where("payment_intent_id = ?", reference).First(&b).Error; err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if !b.PaymentStatus.Refundable() {
			return fmt.Errorf("%w: payment is %s", ErrRefundAlreadyClaimed, b.PaymentStatus)
		}
		var err error
		refund, err = s.Claim(tx, &b, 0, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, refund.ID)
}

// HandleGatewayNotice applies a refund.processed or refund.failed webhook.
func (s *RefundService) HandleGatewayNotice(ctx context.Context, event string, notice *payments.RefundNotice) error {
	var r models.Refund
	if err := s.DB.WithContext(ctx).Where("reference = ?", notice.TransactionReference).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.Warn().Str("reference", notice.TransactionReference).Msg("refund notice for unknown reference")
			return nil
		}
		return err
	}

	switch event {
	case payments.EventRefundProcessed:
		id := ""
		if notice.ID != 0 {
			id = strconv.FormatInt(notice.ID, 10)
		}
		return s.markSucceeded(ctx, &r, id)
	case payments.EventRefundFailed:
		return s.markFailed(ctx, &r, "gateway reported refund failure")
	}
	return nil
}

func (s *RefundService) List(ctx context.Context, status models.RefundStatus) ([]models.Refund, error) {
	q := s.DB.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var refunds []models.Refund
	if err := q.Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

func (s *RefundService) publish(ctx context.Context, t events.EventType, b *models.Booking, msg string) {
	if s.Events == nil {
		return
	}
	evt := events.NewBookingEvent(t, b.ID, b.StudentID, b.TutorID, string(b.Status), string(b.PaymentStatus))
	evt.Message = msg
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.Log.Warn().Err(err).Str("event_type", string(t)).Msg("failed to publish refund event")
	}
}
