package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/api/database/dbtest"
	"github.com/tutorhub/api/models"
)

func newAccountService(t *testing.T) *AccountService {
	return NewAccountService(dbtest.New(t), "secret", time.Hour, zerolog.Nop())
}

func TestRegisterTutorCreatesTutorRow(t *testing.T) {
	svc := newAccountService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{
		FullName: "Nomsa Dlamini", Email: " Nomsa@Example.com ", Password: "hunter22",
		Role: models.RoleTutor, Subject: "Physics", PricePerHour: 250,
	})
	require.NoError(t, err)
	assert.Equal(t, "nomsa@example.com", p.Email)
	assert.True(t, p.IsTutor)
	assert.NotEqual(t, "hunter22", p.Password)

	var tutor models.Tutor
	require.NoError(t, svc.DB.Where("user_id = ?", p.ID).First(&tutor).Error)
	assert.Equal(t, "I am a new tutor teaching Physics.", tutor.Bio)
	assert.Equal(t, 5.0, tutor.Rating)
	assert.Equal(t, 250.0, tutor.PricePerHour)
}

func TestRegisterTutorNeedsSubject(t *testing.T) {
	svc := newAccountService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		FullName: "No Subject", Email: "ns@example.com", Password: "hunter22", Role: models.RoleTutor,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newAccountService(t)
	ctx := context.Background()
	in := RegisterInput{FullName: "Sam", Email: "sam@example.com", Password: "hunter22"}

	_, err := svc.Register(ctx, in)
	require.NoError(t, err)
	_, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginIssuesRoleToken(t *testing.T) {
	svc := newAccountService(t)
	ctx := context.Background()
	p, err := svc.Register(ctx, RegisterInput{FullName: "Sam", Email: "sam@example.com", Password: "hunter22"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "SAM@example.com", "hunter22")
	require.NoError(t, err)

	token, err := jwt.Parse(res.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, p.ID.String(), claims["user_id"])
	assert.Equal(t, models.RoleStudent, claims["role"])

	_, err = svc.Login(ctx, "sam@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	svc := newAccountService(t)
	ctx := context.Background()
	p, err := svc.Register(ctx, RegisterInput{FullName: "Sam", Email: "sam@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(p).Update("is_active", false).Error)

	_, err = svc.Login(ctx, "sam@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLogoutTakesTutorOffline(t *testing.T) {
	svc := newAccountService(t)
	ctx := context.Background()
	p, err := svc.Register(ctx, RegisterInput{FullName: "Tia", Email: "tia@example.com", Password: "hunter22", Role: models.RoleTutor, Subject: "Maths"})
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(&models.Tutor{}).Where("user_id = ?", p.ID).Update("is_online", true).Error)

	require.NoError(t, svc.Logout(ctx, p.ID))

	var tutor models.Tutor
	require.NoError(t, svc.DB.Where("user_id = ?", p.ID).First(&tutor).Error)
	assert.False(t, tutor.IsOnline)
}
