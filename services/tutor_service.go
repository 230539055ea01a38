package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/cache"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/payments"
	"github.com/tutorhub/api/storage"
	"github.com/tutorhub/api/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tutorCachePrefix = "tutors:"

type TutorService struct {
	DB               *gorm.DB
	Gateway          payments.Gateway
	Uploader         storage.Uploader
	Cache            cache.Store
	CacheTTL         time.Duration
	PercentageCharge float64
	Log              zerolog.Logger
}

func NewTutorService(db *gorm.DB, gateway payments.Gateway, uploader storage.Uploader, store cache.Store, cacheTTL time.Duration, percentageCharge float64, log zerolog.Logger) *TutorService {
	return &TutorService{
		DB:               db,
		Gateway:          gateway,
		Uploader:         uploader,
		Cache:            store,
		CacheTTL:         cacheTTL,
		PercentageCharge: percentageCharge,
		Log:              log.With().Str("component", "tutors").Logger(),
	}
}

// PublicTutor is the directory view of a tutor. It carries no contact
// details, account flags or verification documents.
type PublicTutor struct {
	ID                 uuid.UUID                 `json:"id"`
	FullName           string                    `json:"full_name"`
	Subject            string                    `json:"subject"`
	PricePerHour       float64                   `json:"price_per_hour"`
	Bio                string                    `json:"bio"`
	Languages          string                    `json:"languages"`
	LinkedinLink       string                    `json:"linkedin_link"`
	Rating             float64                   `json:"rating"`
	IsOnline           bool                      `json:"is_online"`
	VerificationStatus models.VerificationStatus `json:"verification_status"`
	CustomQuestions    []models.CustomQuestion   `json:"custom_questions"`
}

func NewPublicTutor(t *models.Tutor) PublicTutor {
	out := PublicTutor{
		ID:                 t.ID,
		Subject:            t.Subject,
		PricePerHour:       t.PricePerHour,
		Bio:                t.Bio,
		Languages:          t.Languages,
		LinkedinLink:       t.LinkedinLink,
		Rating:             t.Rating,
		IsOnline:           t.IsOnline,
		VerificationStatus: t.VerificationStatus,
		CustomQuestions:    []models.CustomQuestion(t.CustomQuestions),
	}
	if out.CustomQuestions == nil {
		out.CustomQuestions = []models.CustomQuestion{}
	}
	if t.User != nil {
		out.FullName = t.User.FullName
	}
	return out
}

type TutorDetail struct {
	PublicTutor
	Lessons []models.Lesson `json:"lessons"`
}

// Search lists active tutors whose subject or name contains q, ignoring
// case. An empty q lists everyone. Results are cached briefly.
func (s *TutorService) Search(ctx context.Context, q string) ([]PublicTutor, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	key := tutorCachePrefix + "search:" + q

	var cached []PublicTutor
	if hit, err := s.Cache.Get(ctx, key, &cached); err != nil {
		s.Log.Warn().Err(err).Msg("tutor cache read failed")
	} else if hit {
		return cached, nil
	}

	var tutors []models.Tutor
	query := s.DB.WithContext(ctx).
		Joins("User").
		Where("\"User\".is_active = ?", true)
	if q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(tutors.subject) LIKE ? OR LOWER(\"User\".full_name) LIKE ?", like, like)
	}
	if err := query.Order("tutors.rating desc, tutors.created_at asc").Find(&tutors).Error; err != nil {
		return nil, fmt.Errorf("search tutors: %w", err)
	}
	out := make([]PublicTutor, 0, len(tutors))
	for i := range tutors {
		out = append(out, NewPublicTutor(&tutors[i]))
	}

	if err := s.Cache.Set(ctx, key, out, s.CacheTTL); err != nil {
		s.Log.Warn().Err(err).Msg("tutor cache write failed")
	}
	return out, nil
}

func (s *TutorService) Get(ctx context.Context, tutorID uuid.UUID) (*TutorDetail, error) {
	var t models.Tutor
	if err := s.DB.WithContext(ctx).Preload("User").First(&t, "id = ?", tutorID).Error; err != nil {
		return nil, notFound(err, ErrTutorNotFound)
	}
	lessons, err := s.lessonsFor(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	return &TutorDetail{PublicTutor: NewPublicTutor(&t), Lessons: lessons}, nil
}

func (s *TutorService) Lessons(ctx context.Context, tutorID uuid.UUID) ([]models.Lesson, error) {
	var t models.Tutor
	if err := s.DB.WithContext(ctx).Select("id", "user_id").First(&t, "id = ?", tutorID).Error; err != nil {
		return nil, notFound(err, ErrTutorNotFound)
	}
	return s.lessonsFor(ctx, t.UserID)
}

func (s *TutorService) lessonsFor(ctx context.Context, userID uuid.UUID) ([]models.Lesson, error) {
	lessons := []models.Lesson{}
	if err := s.DB.WithContext(ctx).Where("tutor_id = ?", userID).Order("created_at desc").Find(&lessons).Error; err != nil {
		return nil, err
	}
	return lessons, nil
}

// TutorProfileInput carries a partial profile edit; nil fields are left
// unchanged.
type TutorProfileInput struct {
	Subject         *string                  `json:"subject" validate:"omitempty,min=1,max=255"`
	PricePerHour    *float64                 `json:"price_per_hour" validate:"omitempty,min=0"`
	Bio             *string                  `json:"bio" validate:"omitempty,max=5000"`
	Languages       *string                  `json:"languages" validate:"omitempty,max=255"`
	LinkedinLink    *string                  `json:"linkedin_link" validate:"omitempty,max=255"`
	CustomQuestions *[]models.CustomQuestion `json:"custom_questions"`
}

func (s *TutorService) UpdateProfile(ctx context.Context, userID uuid.UUID, in TutorProfileInput) (*models.Tutor, error) {
	t, err := s.byUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Subject != nil {
		updates["subject"] = strings.TrimSpace(*in.Subject)
	}
	if in.PricePerHour != nil {
		updates["price_per_hour"] = *in.PricePerHour
	}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.Languages != nil {
		updates["languages"] = strings.TrimSpace(*in.Languages)
	}
	if in.LinkedinLink != nil {
		updates["linkedin_link"] = utils.EnsureProtocol(*in.LinkedinLink)
	}
	if in.CustomQuestions != nil {
		updates["custom_questions"] = datatypes.NewJSONSlice(*in.CustomQuestions)
	}
	if len(updates) == 0 {
		return t, nil
	}

	if err := s.DB.WithContext(ctx).Model(&models.Tutor{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update tutor profile: %w", err)
	}
	s.invalidate(ctx)
	return s.byUser(ctx, userID)
}

func (s *TutorService) SetOnline(ctx context.Context, userID uuid.UUID, online bool) error {
	res := s.DB.WithContext(ctx).Model(&models.Tutor{}).Where("user_id = ?", userID).Update("is_online", online)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTutorNotFound
	}
	s.invalidate(ctx)
	return nil
}

// UploadTranscript stores an academic transcript and puts the tutor in the
// verification queue.
func (s *TutorService) UploadTranscript(ctx context.Context, userID uuid.UUID, filename, contentType string, size int64, body io.Reader) (*models.Tutor, error) {
	t, err := s.byUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	fullName := ""
	if t.User != nil {
		fullName = t.User.FullName
	}
	url, err := s.Uploader.Upload(ctx, storage.Object{
		Folder:      "transcripts",
		Name:        utils.TranscriptFileName(fullName, t.ID.String(), filename),
		ContentType: contentType,
		Size:        size,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("upload transcript: %w", err)
	}

	if err := s.DB.WithContext(ctx).Model(&models.Tutor{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"transcript_url":      url,
		"verification_status": models.VerificationPending,
	}).Error; err != nil {
		return nil, err
	}
	s.Log.Info().Str("tutor_id", t.ID.String()).Msg("transcript uploaded, awaiting verification")
	return s.byUser(ctx, userID)
}

func (s *TutorService) PendingVerifications(ctx context.Context) ([]models.Tutor, error) {
	var tutors []models.Tutor
	err := s.DB.WithContext(ctx).Preload("User").
		Where("verification_status = ?", models.VerificationPending).
		Order("updated_at asc").
		Find(&tutors).Error
	return tutors, err
}

func (s *TutorService) SetVerification(ctx context.Context, tutorID uuid.UUID, status models.VerificationStatus) (*models.Tutor, error) {
	if status != models.VerificationVerified && status != models.VerificationRejected {
		return nil, NewValidationError("status", "must be one of verified rejected")
	}
	res := s.DB.WithContext(ctx).Model(&models.Tutor{}).Where("id = ?", tutorID).Update("verification_status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTutorNotFound
	}
	s.invalidate(ctx)

	var t models.Tutor
	if err := s.DB.WithContext(ctx).Preload("User").First(&t, "id = ?", tutorID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

type PayoutInput struct {
	BusinessName  string `json:"business_name" validate:"required,max=255"`
	BankCode      string `json:"bank_code" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
}

// SetupPayouts registers the tutor's bank account as a gateway
// sub-account so that their share of each payment is settled to them.
func (s *TutorService) SetupPayouts(ctx context.Context, userID uuid.UUID, in PayoutInput) (*payments.Subaccount, error) {
	bank, ok := payments.BankByCode(in.BankCode)
	if !ok {
		return nil, NewValidationError("bank_code", "is not a supported bank")
	}
	t, err := s.byUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.Gateway.CreateSubaccount(ctx, payments.SubaccountRequest{
		BusinessName:     strings.TrimSpace(in.BusinessName),
		BankCode:         bank.Code,
		AccountNumber:    in.AccountNumber,
		PercentageCharge: s.PercentageCharge,
		Description:      "TutorHub Payout for " + strings.TrimSpace(in.BusinessName),
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Model(&models.Tutor{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"payment_subaccount_code": sub.Code,
		"bank_name":               bank.Name,
		"account_number":          in.AccountNumber,
		"payouts_enabled":         true,
	}).Error; err != nil {
		return nil, fmt.Errorf("save payout details: %w", err)
	}
	s.Log.Info().Str("tutor_id", t.ID.String()).Str("bank", bank.Name).Msg("payouts enabled")
	return sub, nil
}

type LessonInput struct {
	Title    string `json:"title" validate:"required,max=255"`
	VideoURL string `json:"video_url" validate:"required,max=2000"`
}

func (s *TutorService) AddLesson(ctx context.Context, userID uuid.UUID, in LessonInput) (*models.Lesson, error) {
	if _, err := s.byUser(ctx, userID); err != nil {
		return nil, err
	}
	lesson := models.Lesson{
		TutorID:  userID,
		Title:    strings.TrimSpace(in.Title),
		VideoURL: utils.EnsureProtocol(in.VideoURL),
	}
	if err := s.DB.WithContext(ctx).Create(&lesson).Error; err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return &lesson, nil
}

func (s *TutorService) DeleteLesson(ctx context.Context, userID, lessonID uuid.UUID) error {
	var lesson models.Lesson
	if err := s.DB.WithContext(ctx).First(&lesson, "id = ?", lessonID).Error; err != nil {
		return notFound(err, ErrLessonNotFound)
	}
	if lesson.TutorID != userID {
		return ErrForbidden
	}
	return s.DB.WithContext(ctx).Delete(&lesson).Error
}

func (s *TutorService) byUser(ctx context.Context, userID uuid.UUID) (*models.Tutor, error) {
	var t models.Tutor
	err := s.DB.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTutorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TutorService) invalidate(ctx context.Context) {
	invalidateTutors(ctx, s.Cache, s.Log)
}

func invalidateTutors(ctx context.Context, store cache.Store, log zerolog.Logger) {
	if store == nil {
		return
	}
	if err := store.DeletePrefix(ctx, tutorCachePrefix); err != nil {
		log.Warn().Err(err).Msg("tutor cache invalidation failed")
	}
}
