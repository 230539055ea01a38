package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/models"
	"github.com/xuri/excelize/v2"
)

func TestBookingsXLSX(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	paid := models.Booking{
		ID: uuid.New(), StudentID: uuid.New(), TutorID: uuid.New(),
		Status: models.StatusCompleted, BookingType: models.BookingLive, ScheduledTime: created,
		PaymentStatus: models.PaymentPaid, PaymentIntentID: "TH-AAAAAAAAAAAA", Currency: "ZAR", Amount: 150,
		CreatedAt: created,
	}
	refundedBooking := paid
	refundedBooking.ID = uuid.New()
	refundedBooking.Status = models.StatusCancelled
	refundedBooking.PaymentStatus = models.PaymentRefunded
	refundedBooking.PaymentIntentID = "TH-BBBBBBBBBBBB"

	refunds := map[uuid.UUID]models.Refund{
		refundedBooking.ID: {BookingID: refundedBooking.ID, Status: models.RefundSucceeded, AmountMinor: 15000},
	}

	data, err := BookingsXLSX([]models.Booking{paid, refundedBooking}, refunds)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, bookingHeaders, rows[0])
	assert.Equal(t, "TH-BBBBBBBBBBBB", rows[2][8])
	assert.Equal(t, "succeeded", rows[2][11])

	net, err := f.GetCellValue(summarySheet, "B10")
	require.NoError(t, err)
	assert.Equal(t, "150", net)
}
