package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/storage"
	"gorm.io/gorm"
)

//go:embed templates/receipt.html
var receiptFS embed.FS

var receiptTemplate = template.Must(template.ParseFS(receiptFS, "templates/receipt.html"))

// PDFRenderer turns an HTML document into a PDF.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

type ReceiptService struct {
	DB       *gorm.DB
	Uploader storage.Uploader
	Render   PDFRenderer
	Log      zerolog.Logger
}

func NewReceiptService(db *gorm.DB, uploader storage.Uploader, log zerolog.Logger) *ReceiptService {
	return &ReceiptService{
		DB:       db,
		Uploader: uploader,
		Render:   ChromePDF,
		Log:      log.With().Str("component", "receipts").Logger(),
	}
}

type receiptData struct {
	Reference   string
	StudentName string
	TutorName   string
	Subject     string
	SessionType string
	SessionTime string
	Topic       string
	Currency    string
	Amount      string
	IssuedAt    string
}

// Generate renders and stores the payment receipt for a booking and
// records its URL. A booking that already has a receipt keeps it.
func (s *ReceiptService) Generate(ctx context.Context, bookingID uuid.UUID) (string, error) {
	var b models.Booking
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", bookingID).Error; err != nil {
		return "", notFound(err, ErrBookingNotFound)
	}
	if b.ReceiptURL != nil {
		return *b.ReceiptURL, nil
	}

	var student models.Profile
	if err := s.DB.WithContext(ctx).First(&student, "id = ?", b.StudentID).Error; err != nil {
		return "", notFound(err, ErrProfileNotFound)
	}
	var tutor models.Tutor
	if err := s.DB.WithContext(ctx).Preload("User").First(&tutor, "id = ?", b.TutorID).Error; err != nil {
		return "", notFound(err, ErrTutorNotFound)
	}

	data := receiptData{
		Reference:   b.PaymentIntentID,
		StudentName: student.FullName,
		Subject:     tutor.Subject,
		SessionType: string(b.BookingType),
		SessionTime: b.ScheduledTime.UTC().Format("2 January 2006 15:04 MST"),
		Topic:       b.TopicDescription,
		Currency:    b.Currency,
		Amount:      fmt.Sprintf("%.2f", b.Amount),
		IssuedAt:    b.CreatedAt.UTC().Format("January 2, 2006"),
	}
	if tutor.User != nil {
		data.TutorName = tutor.User.FullName
	}

	var html bytes.Buffer
	if err := receiptTemplate.Execute(&html, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	pdf, err := s.Render(ctx, html.String())
	if err != nil {
		return "", fmt.Errorf("print receipt: %w", err)
	}

	url, err := s.Uploader.Upload(ctx, storage.Object{
		Folder:      "receipts",
		Name:        b.PaymentIntentID + ".pdf",
		ContentType: "application/pdf",
		Size:        int64(len(pdf)),
		Body:        bytes.NewReader(pdf),
	})
	if err != nil {
		return "", fmt.Errorf("upload receipt: %w", err)
	}

	if err := s.DB.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND receipt_url IS NULL", b.ID).
		Update("receipt_url", url).Error; err != nil {
		return "", fmt.Errorf("save receipt url: %w", err)
	}

	s.Log.Info().Str("booking_id", b.ID.String()).Str("url", url).Msg("receipt generated")
	return url, nil
}

// ChromePDF prints HTML with a headless Chrome.
func ChromePDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	defer cancelTimeout()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}
