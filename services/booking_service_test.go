package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
)

func (f *fixture) paidTransaction(t *testing.T, reference string, amountMinor int64) *payments.Transaction {
	t.Helper()
	meta, err := json.Marshal(bookingMetadata{
		StudentID:        f.student.ID.String(),
		TutorID:          f.tutor.ID.String(),
		BookingType:      string(models.BookingLive),
		TopicDescription: "Exam prep",
	})
	require.NoError(t, err)
	return &payments.Transaction{
		Status:      "success",
		Reference:   reference,
		AmountMinor: amountMinor,
		Currency:    "ZAR",
		Metadata:    meta,
	}
}

func TestCheckoutSendsTutorPriceAndDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent payments.InitializeRequest
	f.gateway.On("InitializeTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(payments.InitializeRequest) }).
		Return(&payments.Checkout{AuthorizationURL: "https://checkout.paystack.com/abc", AccessCode: "abc"}, nil)

	scheduled := testNow.Add(48 * time.Hour)
	res, err := f.bookings.Checkout(ctx, f.student.ID, BookingDraft{
		TutorID:          f.tutor.ID,
		BookingType:      models.BookingScheduled,
		ScheduledTime:    &scheduled,
		TopicDescription: "  Integration by parts ",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, 200.0, res.Amount)
	assert.Equal(t, int64(20000), sent.AmountMinor)
	assert.Equal(t, "student@example.com", sent.Email)
	assert.Equal(t, res.Reference, sent.Reference)
	assert.Empty(t, sent.Subaccount)

	meta := sent.Metadata.(bookingMetadata)
	assert.Equal(t, f.tutor.ID.String(), meta.TutorID)
	assert.Equal(t, "Integration by parts", meta.TopicDescription)
	assert.Equal(t, scheduled.Format(time.RFC3339), meta.ScheduledTime)
}

func TestCheckoutRejectsPastScheduledTime(t *testing.T) {
	f := newFixture(t)
	past := testNow.Add(-time.Hour)

	_, err := f.bookings.Checkout(context.Background(), f.student.ID, BookingDraft{
		TutorID:          f.tutor.ID,
		BookingType:      models.BookingScheduled,
		ScheduledTime:    &past,
		TopicDescription: "Algebra",
	})
	assert.ErrorIs(t, err, ErrValidation)
	f.gateway.AssertNotCalled(t, "InitializeTransaction", mock.Anything, mock.Anything)
}

func TestCreateFromPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("VerifyTransaction", mock.Anything, "TH-REF000001").
		Return(f.paidTransaction(t, "TH-REF000001", 20000), nil).Once()

	first, created, err := f.bookings.CreateFromPayment(ctx, f.student.ID, "TH-REF000001", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, models.PaymentPaid, first.PaymentStatus)
	assert.Equal(t, f.tutor.ID, first.TutorID)
	assert.Equal(t, 200.0, first.Amount)

	second, created, err := f.bookings.CreateFromPayment(ctx, f.student.ID, "TH-REF000001", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	f.gateway.AssertExpectations(t)
	assert.Equal(t, []events.EventType{events.BookingCreated}, f.events.Types())
}

func TestCreateFromPaymentRejectsUnderpayment(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("VerifyTransaction", mock.Anything, "TH-REF000002").
		Return(f.paidTransaction(t, "TH-REF000002", 100), nil)

	_, _, err := f.bookings.CreateFromPayment(context.Background(), f.student.ID, "TH-REF000002", nil)
	assert.ErrorIs(t, err, ErrPaymentNotVerified)

	var n int64
	f.db.Model(&models.Booking{}).Count(&n)
	assert.Zero(t, n)
}

func TestCreateFromPaymentRejectsOtherStudent(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("VerifyTransaction", mock.Anything, "TH-REF000003").
		Return(f.paidTransaction(t, "TH-REF000003", 20000), nil)

	_, _, err := f.bookings.CreateFromPayment(context.Background(), f.tutorUser.ID, "TH-REF000003", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestWebhookAndClientCreateOneBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.paidTransaction(t, "TH-REF000004", 20000)

	fromHook, err := f.bookings.HandleChargeSuccess(ctx, txn)
	require.NoError(t, err)
	require.NotNil(t, fromHook)

	fromClient, created, err := f.bookings.CreateFromPayment(ctx, f.student.ID, "TH-REF000004", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, fromHook.ID, fromClient.ID)
	f.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

func TestHandleChargeSuccessWithoutMetadataWaits(t *testing.T) {
	f := newFixture(t)
	b, err := f.bookings.HandleChargeSuccess(context.Background(), &payments.Transaction{
		Status: "success", Reference: "TH-REF000005", AmountMinor: 20000, Currency: "ZAR", Metadata: json.RawMessage(`""`),
	})
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestAcceptConfirmsWithMeetingLink(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	got, err := f.bookings.Accept(context.Background(), f.tutorUser.ID, b.ID, "meet.google.com/abc-defg-hij")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.MeetingLink)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", *got.MeetingLink)
	assert.Equal(t, 2, got.Version)
}

func TestAcceptByAnotherTutorIsForbidden(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	_, err := f.bookings.Accept(context.Background(), f.student.ID, b.ID, "https://zoom.us/j/1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAcceptAfterExpiryFails(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)
	f.advance(16 * time.Minute)

	_, err := f.bookings.Accept(context.Background(), f.tutorUser.ID, b.ID, "https://zoom.us/j/1")
	assert.ErrorIs(t, err, ErrBookingExpired)
}

func TestRejectRefundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	res, err := f.bookings.Reject(ctx, f.tutorUser.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Booking.Status)
	assert.Equal(t, models.PaymentRefunded, res.Booking.PaymentStatus)
	require.NotNil(t, res.Booking.RejectionReason)
	assert.Equal(t, "Tutor unavailable.", *res.Booking.RejectionReason)
	require.NotNil(t, res.Refund)
	assert.Equal(t, models.RefundSucceeded, res.Refund.Status)

	_, err = f.bookings.Reject(ctx, f.tutorUser.ID, b.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.gateway.AssertNumberOfCalls(t, "Refund", 1)
	assert.Equal(t, int64(1), f.refundCount(t, b.ID))
}

func TestRejectWithQueuedRefundWaitsForGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundQueued()
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	res, err := f.bookings.Reject(ctx, f.tutorUser.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Booking.Status)
	assert.Equal(t, models.PaymentPaid, res.Booking.PaymentStatus)
	assert.Equal(t, models.RefundProcessing, res.Refund.Status)
	require.NotNil(t, res.Refund.GatewayRefundID)
	assert.Equal(t, "77", *res.Refund.GatewayRefundID)
	assert.NotContains(t, f.events.Types(), events.RefundSucceeded)

	notice := &payments.RefundNotice{ID: 77, TransactionReference: b.PaymentIntentID}
	require.NoError(t, f.refunds.HandleGatewayNotice(ctx, payments.EventRefundFailed, notice))

	var stored models.Refund
	require.NoError(t, f.db.First(&stored, "id = ?", res.Refund.ID).Error)
	assert.Equal(t, models.RefundFailed, stored.Status)
	assert.Equal(t, models.PaymentPaid, f.booking(t, b.ID).PaymentStatus)
	assert.Contains(t, f.events.Types(), events.RefundFailed)
}

func TestFullRefundOmitsAmount(t *testing.T) {
	f := newFixture(t)
	var sent payments.RefundRequest
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(payments.RefundRequest) }).
		Return(&payments.RefundResult{ID: 1, Status: payments.RefundStatusProcessed}, nil)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	_, err := f.bookings.Cancel(context.Background(), f.student.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.PaymentIntentID, sent.Reference)
	assert.Zero(t, sent.AmountMinor)
}

func TestRejectKeepsTransitionWhenGatewayFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Return(nil, &payments.GatewayError{Op: "refund", StatusCode: 503, Message: "unavailable"}).Once()
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	res, err := f.bookings.Reject(ctx, f.tutorUser.ID, b.ID, "Clash")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Booking.Status)
	assert.Equal(t, models.PaymentPaid, res.Booking.PaymentStatus)
	assert.Equal(t, models.RefundFailed, res.Refund.Status)
	assert.Contains(t, f.events.Types(), events.RefundFailed)

	f.refundOK()
	n, err := f.refunds.RetryDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PaymentRefunded, f.booking(t, b.ID).PaymentStatus)
}

func TestCancelConfirmedIsInvalid(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusConfirmed, models.BookingLive, testNow)

	_, err := f.bookings.Cancel(context.Background(), f.student.ID, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpireSweepRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	live := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)
	scheduled := f.seedBooking(t, models.StatusPending, models.BookingScheduled, testNow.Add(24*time.Hour))

	f.advance(16 * time.Minute)
	n, err := f.bookings.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.bookings.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, models.StatusCancelled, f.booking(t, live.ID).Status)
	assert.Equal(t, models.PaymentRefunded, f.booking(t, live.ID).PaymentStatus)
	assert.Equal(t, models.StatusPending, f.booking(t, scheduled.ID).Status)
	f.gateway.AssertNumberOfCalls(t, "Refund", 1)
	assert.Contains(t, f.events.Types(), events.BookingExpired)
}

func TestConcurrentSweepsRefundOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	b := f.seedBooking(t, models.StatusPending, models.BookingScheduled, testNow)
	f.advance(3 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.bookings.ExpirePending(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StatusCancelled, f.booking(t, b.ID).Status)
	assert.Equal(t, int64(1), f.refundCount(t, b.ID))
	f.gateway.AssertNumberOfCalls(t, "Refund", 1)
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)
	stale := *b

	_, err := f.bookings.Accept(context.Background(), f.tutorUser.ID, b.ID, "https://zoom.us/j/1")
	require.NoError(t, err)

	err = f.bookings.transition(f.db, &stale, models.StatusRejected, nil)
	assert.ErrorIs(t, err, ErrBookingConflict)
	assert.Equal(t, models.StatusConfirmed, f.booking(t, b.ID).Status)
}

func TestCompleteBeforeStartIsTooEarly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, models.StatusConfirmed, models.BookingScheduled, testNow.Add(time.Hour))

	_, err := f.bookings.Complete(ctx, f.tutorUser.ID, b.ID)
	assert.ErrorIs(t, err, ErrTooEarly)

	f.advance(2 * time.Hour)
	got, err := f.bookings.Complete(ctx, f.tutorUser.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestReviewCompletesAndIsAllowedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, models.StatusConfirmed, models.BookingLive, testNow)

	review, err := f.bookings.SubmitReview(ctx, f.student.ID, b.ID, ReviewInput{Rating: 4, Comment: "Helpful"})
	require.NoError(t, err)
	assert.Equal(t, 4, review.Rating)
	assert.Equal(t, models.StatusCompleted, f.booking(t, b.ID).Status)

	var tutor models.Tutor
	require.NoError(t, f.db.First(&tutor, "id = ?", f.tutor.ID).Error)
	assert.Equal(t, 4.0, tutor.Rating)

	_, err = f.bookings.SubmitReview(ctx, f.student.ID, b.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Equal(t, []events.EventType{events.BookingCompleted, events.ReviewSubmitted}, f.events.Types())
}

func TestReviewDropsCachedTutorListings(t *testing.T) {
	f := newFixture(t)
	store := &prefixRecorder{}
	f.bookings.TutorCache = store
	b := f.seedBooking(t, models.StatusCompleted, models.BookingLive, testNow)

	_, err := f.bookings.SubmitReview(context.Background(), f.student.ID, b.ID, ReviewInput{Rating: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{tutorCachePrefix}, store.Dropped())
}

func TestReviewOfPendingBookingIsInvalid(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)

	_, err := f.bookings.SubmitReview(context.Background(), f.student.ID, b.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNoShowOpensAfterGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.refundOK()
	b := f.seedBooking(t, models.StatusConfirmed, models.BookingScheduled, testNow)

	f.advance(10 * time.Minute)
	_, err := f.bookings.ReportNoShow(ctx, f.student.ID, b.ID)
	assert.ErrorIs(t, err, ErrTooEarly)

	f.advance(10 * time.Minute)
	res, err := f.bookings.ReportNoShow(ctx, f.student.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Booking.Status)
	assert.Equal(t, models.PaymentRefunded, res.Booking.PaymentStatus)
}

func TestDisputePartialResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var sent payments.RefundRequest
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(payments.RefundRequest) }).
		Return(&payments.RefundResult{ID: 5, Status: payments.RefundStatusProcessed}, nil)
	b := f.seedBooking(t, models.StatusConfirmed, models.BookingLive, testNow)

	_, err := f.bookings.Dispute(ctx, f.student.ID, b.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)

	disputed, err := f.bookings.Dispute(ctx, f.student.ID, b.ID, "Tutor left after ten minutes")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, disputed.Status)

	res, err := f.bookings.ResolveDispute(ctx, b.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartialRefund, res.Booking.PaymentStatus)
	require.NotNil(t, res.Booking.Resolution)
	assert.Equal(t, "partial_refund", *res.Booking.Resolution)
	assert.Equal(t, int64(5000), sent.AmountMinor)
	assert.Equal(t, models.RefundPartial, res.Refund.Kind)

	_, err = f.bookings.ResolveDispute(ctx, b.ID, 0)
	assert.ErrorIs(t, err, ErrDisputeResolved)
}

func TestDisputeReleaseMakesNoRefund(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, models.StatusDisputed, models.BookingLive, testNow)

	res, err := f.bookings.ResolveDispute(context.Background(), b.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Refund)
	assert.Equal(t, "released", *res.Booking.Resolution)
	assert.Equal(t, models.PaymentPaid, res.Booking.PaymentStatus)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}
