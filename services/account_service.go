package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AccountService struct {
	DB        *gorm.DB
	JWTSecret []byte
	TokenTTL  time.Duration
	Log       zerolog.Logger
	Now       func() time.Time
}

func NewAccountService(db *gorm.DB, secret string, ttl time.Duration, log zerolog.Logger) *AccountService {
	return &AccountService{
		DB:        db,
		JWTSecret: []byte(secret),
		TokenTTL:  ttl,
		Log:       log.With().Str("component", "accounts").Logger(),
		Now:       time.Now,
	}
}

type RegisterInput struct {
	FullName     string  `json:"full_name" validate:"required,min=2,max=255"`
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=6"`
	Role         string  `json:"role" validate:"omitempty,oneof=student tutor"`
	Subject      string  `json:"subject" validate:"required_if=Role tutor,max=255"`
	PricePerHour float64 `json:"price_per_hour" validate:"min=0"`
}

type LoginResult struct {
	Token   string          `json:"token"`
	Profile *models.Profile `json:"profile"`
}

// Register creates a profile, and for tutors the tutor row, in one
// transaction.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Profile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	isTutor := in.Role == models.RoleTutor
	if isTutor && strings.TrimSpace(in.Subject) == "" {
		return nil, NewValidationError("subject", "is required for tutors")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := models.Profile{
		Email:    in.Email,
		FullName: in.FullName,
		Password: string(hashed),
		IsTutor:  isTutor,
		IsActive: true,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		if !isTutor {
			return nil
		}
		subject := strings.TrimSpace(in.Subject)
		tutor := models.Tutor{
			UserID:             profile.ID,
			Subject:            subject,
			PricePerHour:       in.PricePerHour,
			Bio:                fmt.Sprintf("I am a new tutor teaching %s.", subject),
			Rating:             5,
			VerificationStatus: models.VerificationNone,
		}
		return tx.Create(&tutor).Error
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("user_id", profile.ID.String()).Str("role", profile.Role()).Msg("account registered")
	return &profile, nil
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !profile.IsActive {
		return nil, ErrAccountDisabled
	}

	token, err := s.IssueToken(&profile)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Profile: &profile}, nil
}

func (s *AccountService) IssueToken(p *models.Profile) (string, error) {
	claims := jwt.MapClaims{
		"user_id": p.ID.String(),
		"role":    p.Role(),
		"exp":     s.Now().Add(s.TokenTTL).Unix(),
	}
	t, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return t, nil
}

// Logout marks a tutor offline. Tokens are stateless and simply expire.
func (s *AccountService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.DB.WithContext(ctx).Model(&models.Tutor{}).
		Where("user_id = ?", userID).
		Update("is_online", false).Error
}

func (s *AccountService) Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, ErrProfileNotFound)
	}
	return &p, nil
}
