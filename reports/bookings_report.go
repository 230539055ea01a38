// Package reports renders admin exports.
package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhub/api/models"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingHeaders = []string{
	"Booking ID", "Created", "Student ID", "Tutor ID", "Type", "Scheduled",
	"Status", "Payment", "Reference", "Currency", "Amount", "Refund Status", "Refunded", "Resolution",
}

// BookingsXLSX writes one row per booking plus a per-status summary sheet.
// refunds is keyed by booking id.
func BookingsXLSX(bookings []models.Booking, refunds map[uuid.UUID]models.Refund) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	for i, header := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(bookingsSheet, cell, header)
	}

	byStatus := map[models.BookingStatus]int{}
	var gross, refunded float64
	for rowIndex, b := range bookings {
		byStatus[b.Status]++
		gross += b.Amount

		refundStatus, refundAmount := "", 0.0
		if r, ok := refunds[b.ID]; ok {
			refundStatus = string(r.Status)
			if r.Status == models.RefundSucceeded {
				refundAmount = float64(r.AmountMinor) / 100
				refunded += refundAmount
			}
		}
		resolution := ""
		if b.Resolution != nil {
			resolution = *b.Resolution
		}

		row := []interface{}{
			b.ID.String(), b.CreatedAt.UTC().Format(time.RFC3339), b.StudentID.String(), b.TutorID.String(),
			string(b.BookingType), b.ScheduledTime.UTC().Format(time.RFC3339),
			string(b.Status), string(b.PaymentStatus), b.PaymentIntentID, b.Currency, b.Amount,
			refundStatus, refundAmount, resolution,
		}
		for colIndex, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIndex+1, rowIndex+2)
			f.SetCellValue(bookingsSheet, cell, value)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	summary := [][]interface{}{{"Metric", "Value"}}
	for _, s := range []models.BookingStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusCompleted,
		models.StatusRejected, models.StatusCancelled, models.StatusDisputed,
	} {
		summary = append(summary, []interface{}{"Bookings " + string(s), byStatus[s]})
	}
	summary = append(summary,
		[]interface{}{"Gross paid", gross},
		[]interface{}{"Refunded", refunded},
		[]interface{}{"Net", gross - refunded},
	)
	for rowIndex, row := range summary {
		for colIndex, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
			f.SetCellValue(summarySheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}
