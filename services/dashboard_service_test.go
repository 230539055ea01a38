package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/models"
)

func newDashboard(f *fixture) *DashboardService {
	svc := NewDashboardService(f.db, f.bookings.Policy, 50)
	svc.Now = f.bookings.Now
	return svc
}

func TestTutorDashboardHidesRejectedAndExpired(t *testing.T) {
	f := newFixture(t)
	svc := newDashboard(f)

	expiring := f.seedBooking(t, models.StatusPending, models.BookingLive, testNow)
	f.advance(30 * time.Minute)
	confirmed := f.seedBooking(t, models.StatusConfirmed, models.BookingScheduled, testNow.Add(24*time.Hour))
	f.seedBooking(t, models.StatusRejected, models.BookingLive, *f.clock)
	f.advance(time.Minute)
	fresh := f.seedBooking(t, models.StatusPending, models.BookingLive, *f.clock)

	d, err := svc.Load(context.Background(), f.tutorUser.ID, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, d.Tutor)
	assert.Equal(t, 2, d.Total)
	require.Len(t, d.Bookings, 2)

	assert.Equal(t, fresh.ID, d.Bookings[0].ID)
	assert.Equal(t, confirmed.ID, d.Bookings[1].ID)
	for _, b := range d.Bookings {
		assert.NotEqual(t, expiring.ID, b.ID)
		require.NotNil(t, b.Student)
		assert.Equal(t, "Sam Student", b.Student.FullName)
		assert.Nil(t, b.Tutor)
	}
}

func TestStudentDashboardJoinsTutors(t *testing.T) {
	f := newFixture(t)
	svc := newDashboard(f)
	f.seedBooking(t, models.StatusRejected, models.BookingLive, testNow)
	f.advance(time.Minute)
	f.seedBooking(t, models.StatusConfirmed, models.BookingLive, *f.clock)

	d, err := svc.Load(context.Background(), f.student.ID, 1, 0)
	require.NoError(t, err)
	assert.Nil(t, d.Tutor)
	require.Len(t, d.Bookings, 2)
	assert.Equal(t, models.StatusConfirmed, d.Bookings[0].Status)

	tutor := d.Bookings[0].Tutor
	require.NotNil(t, tutor)
	assert.Equal(t, "Tia Tutor", tutor.FullName)
	assert.Equal(t, "Maths", tutor.Subject)
	assert.Equal(t, f.tutor.ID, *tutor.TutorID)
}

func TestDashboardPaginates(t *testing.T) {
	f := newFixture(t)
	svc := newDashboard(f)
	for i := 0; i < 5; i++ {
		f.seedBooking(t, models.StatusConfirmed, models.BookingLive, *f.clock)
		f.advance(time.Second)
	}

	d, err := svc.Load(context.Background(), f.student.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Total)
	assert.Len(t, d.Bookings, 2)

	d, err = svc.Load(context.Background(), f.student.ID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, d.Bookings)
}
