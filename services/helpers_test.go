package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/cache"
	"github.com/tutorhub/api/database/dbtest"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitializeTransaction(ctx context.Context, req payments.InitializeRequest) (*payments.Checkout, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*payments.Checkout)
	return out, args.Error(1)
}

func (m *mockGateway) VerifyTransaction(ctx context.Context, reference string) (*payments.Transaction, error) {
	args := m.Called(ctx, reference)
	out, _ := args.Get(0).(*payments.Transaction)
	return out, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*payments.RefundResult)
	return out, args.Error(1)
}

func (m *mockGateway) CreateSubaccount(ctx context.Context, req payments.SubaccountRequest) (*payments.Subaccount, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*payments.Subaccount)
	return out, args.Error(1)
}

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	gateway  *mockGateway
	events   *events.Recorder
	refunds  *RefundService
	bookings *BookingService
	clock    *time.Time

	student   models.Profile
	tutorUser models.Profile
	tutor     models.Tutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	gw := &mockGateway{}
	rec := events.NewRecorder()

	clock := testNow
	now := func() time.Time { return clock }

	refunds := NewRefundService(db, gw, rec, 3, zerolog.Nop())
	refunds.Now = now
	bookings := NewBookingService(db, gw, refunds, rec, BookingPolicy{
		LiveExpiry:      15 * time.Minute,
		ScheduledExpiry: 120 * time.Minute,
		NoShowGrace:     15 * time.Minute,
		Currency:        "ZAR",
		DefaultPrice:    150,
	}, zerolog.Nop())
	bookings.Now = now

	f := &fixture{db: db, gateway: gw, events: rec, refunds: refunds, bookings: bookings, clock: &clock}

	f.student = models.Profile{Email: "student@example.com", FullName: "Sam Student", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&f.student).Error)
	f.tutorUser = models.Profile{Email: "tutor@example.com", FullName: "Tia Tutor", Password: "x", IsTutor: true, IsActive: true}
	require.NoError(t, db.Create(&f.tutorUser).Error)
	f.tutor = models.Tutor{UserID: f.tutorUser.ID, Subject: "Maths", PricePerHour: 200, Rating: 5}
	require.NoError(t, db.Create(&f.tutor).Error)
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

// seedBooking inserts a paid booking directly.
func (f *fixture) seedBooking(t *testing.T, status models.BookingStatus, typ models.BookingType, scheduled time.Time) *models.Booking {
	t.Helper()
	b := models.Booking{
		StudentID:        f.student.ID,
		TutorID:          f.tutor.ID,
		Status:           status,
		BookingType:      typ,
		ScheduledTime:    scheduled,
		PaymentStatus:    models.PaymentPaid,
		PaymentIntentID:  "TH-" + uuid.NewString()[:12],
		Amount:           200,
		Currency:         "ZAR",
		TopicDescription: "Calculus revision",
		CreatedAt:        *f.clock,
		UpdatedAt:        *f.clock,
	}
	require.NoError(t, f.db.Create(&b).Error)
	return &b
}

// refundOK makes the gateway settle refunds synchronously.
func (f *fixture) refundOK() *mock.Call {
	return f.gateway.On("Refund", mock.Anything, mock.Anything).Return(&payments.RefundResult{ID: 99, Status: payments.RefundStatusProcessed}, nil)
}

// refundQueued makes the gateway accept refunds and settle them later.
func (f *fixture) refundQueued() *mock.Call {
	return f.gateway.On("Refund", mock.Anything, mock.Anything).Return(&payments.RefundResult{ID: 77, Status: payments.RefundStatusPending}, nil)
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return b
}

func (f *fixture) refundCount(t *testing.T, bookingID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Refund{}).Where("booking_id = ?", bookingID).Count(&n).Error)
	return n
}

// prefixRecorder is a cache.Store that never hits and remembers which
// prefixes were dropped.
type prefixRecorder struct {
	cache.NopStore
	mu      sync.Mutex
	dropped []string
}

func (r *prefixRecorder) DeletePrefix(ctx context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, prefix)
	return nil
}

func (r *prefixRecorder) Dropped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dropped...)
}
