package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
	"gorm.io/gorm"
)

func (f *fixture) claim(t *testing.T, b *models.Booking, amountMinor int64) *models.Refund {
	t.Helper()
	var r *models.Refund
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		r, err = f.refunds.Claim(tx, b, amountMinor, "test")
		return err
	}))
	return r
}

func TestClaimIsOncePerBooking(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)

	first := f.claim(t, b, 0)
	assert.Equal(t, models.RefundFull, first.Kind)
	assert.Equal(t, int64(20000), first.AmountMinor)
	assert.Equal(t, models.RefundPending, first.Status)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		again, err := f.refunds.Claim(tx, b, 0, "again")
		assert.Equal(t, first.ID, again.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrRefundAlreadyClaimed)
}

func TestClaimAtFullAmountIsFull(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusDisputed, models.BookingLive, testNow)

	r := f.claim(t, b, 25000)
	assert.Equal(t, models.RefundFull, r.Kind)
	assert.Equal(t, int64(20000), r.AmountMinor)
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Return(nil, &payments.GatewayError{Op: "refund", Message: "insufficient balance"})
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	r := f.claim(t, b, 0)

	for i := 0; i < 3; i++ {
		out, err := f.refunds.Execute(ctx, r.ID)
		assert.True(t, IsGateway(err))
		assert.Equal(t, i+1, out.Attempts)
	}

	_, err := f.refunds.Execute(ctx, r.ID)
	assert.ErrorIs(t, err, ErrRefundNotRetryable)
	f.gateway.AssertNumberOfCalls(t, "Refund", 3)

	f.advance(time.Hour)
	n, err := f.refunds.RetryDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.gateway.AssertNumberOfCalls(t, "Refund", 3)
}

func TestAdminRetryIgnoresAttemptLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	r := f.claim(t, b, 0)
	require.NoError(t, f.db.Model(&models.Refund{}).Where("id = ?", r.ID).
		Updates(map[string]interface{}{"status": models.RefundFailed, "attempts": 3}).Error)
	f.refundOK()

	out, err := f.refunds.Retry(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundSucceeded, out.Status)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, models.PaymentRefunded, f.booking(t, b.ID).PaymentStatus)
}

func TestExecuteSkipsProcessingEntry(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	r := f.claim(t, b, 0)
	require.NoError(t, f.db.Model(&models.Refund{}).Where("id = ?", r.ID).Update("status", models.RefundProcessing).Error)

	_, err := f.refunds.Execute(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrRefundInProgress)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestRetryDueWaitsForFreshClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	f.claim(t, b, 0)

	n, err := f.refunds.RetryDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(2 * time.Minute)
	n, err = f.refunds.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRefundByReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	b := f.seedBooking(t, models.StatusCompleted, models.BookingLive, testNow)

	r, err := f.refunds.RefundByReference(ctx, b.PaymentIntentID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RefundSucceeded, r.Status)
	assert.Equal(t, "Refund issued by admin", r.Reason)

	_, err = f.refunds.RefundByReference(ctx, b.PaymentIntentID, "")
	assert.ErrorIs(t, err, ErrRefundAlreadyClaimed)

	_, err = f.refunds.RefundByReference(ctx, "TH-UNKNOWN", "")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestGatewayNoticesUpdateLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, models.StatusRejected, models.BookingLive, testNow)
	r := f.claim(t, b, 0)
	notice := &payments.RefundNotice{ID: 321, TransactionReference: b.PaymentIntentID}

	require.NoError(t, f.refunds.HandleGatewayNotice(ctx, payments.EventRefundFailed, notice))
	refunds, err := f.refunds.List(ctx, models.RefundFailed)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, r.ID, refunds[0].ID)

	require.NoError(t, f.refunds.HandleGatewayNotice(ctx, payments.EventRefundProcessed, notice))
	require.NoError(t, f.refunds.HandleGatewayNotice(ctx, payments.EventRefundProcessed, notice))

	var stored models.Refund
	require.NoError(t, f.db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, models.RefundSucceeded, stored.Status)
	require.NotNil(t, stored.GatewayRefundID)
	assert.Equal(t, "321", *stored.GatewayRefundID)
	assert.Equal(t, models.PaymentRefunded, f.booking(t, b.ID).PaymentStatus)

	succeeded := 0
	for _, typ := range f.events.Types() {
		if typ == events.RefundSucceeded {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestQueuedRefundSettlesOnProcessedNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundQueued()
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	r := f.claim(t, b, 0)

	out, err := f.refunds.Execute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundProcessing, out.Status)
	assert.Equal(t, models.PaymentPaid, f.booking(t, b.ID).PaymentStatus)

	f.advance(time.Hour)
	n, err := f.refunds.RetryDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.gateway.AssertNumberOfCalls(t, "Refund", 1)

	notice := &payments.RefundNotice{ID: 77, TransactionReference: b.PaymentIntentID}
	require.NoError(t, f.refunds.HandleGatewayNotice(ctx, payments.EventRefundProcessed, notice))

	var stored models.Refund
	require.NoError(t, f.db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, models.RefundSucceeded, stored.Status)
	assert.Equal(t, models.PaymentRefunded, f.booking(t, b.ID).PaymentStatus)
}

func TestGatewayFailedResultMarksEntryFailed(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Return(&payments.RefundResult{ID: 3, Status: payments.RefundStatusFailed}, nil)
	b := f.seedBooking(t, models.StatusCancelled, models.BookingLive, testNow)
	r := f.claim(t, b, 0)

	out, err := f.refunds.Execute(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundFailed, out.Status)
	assert.Equal(t, models.PaymentPaid, f.booking(t, b.ID).PaymentStatus)
}

func TestGatewayNoticeForUnknownReferenceIsIgnored(t *testing.T) {
	f := newFixture(t)
	err := f.refunds.HandleGatewayNotice(context.Background(), payments.EventRefundProcessed,
		&payments.RefundNotice{TransactionReference: "TH-NOPE"})
	assert.NoError(t, err)
}
