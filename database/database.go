package database

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	config "github.com/tutorhub/api/configs"
	"github.com/tutorhub/api/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Migrate brings the schema up to date using the configured mode: "sql"
// runs the embedded migrations, "auto" uses gorm AutoMigrate, "none" skips.
func Migrate(db *gorm.DB, cfg config.DatabaseConfig, log zerolog.Logger) error {
	switch cfg.MigrateMode {
	case "sql":
		return RunMigrations(cfg.URL, log)
	case "auto":
		return AutoMigrate(db)
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unknown DATABASE_MIGRATE mode %q", cfg.MigrateMode)
	}
}

func SeedAdmin(db *gorm.DB, admin config.AdminConfig, log zerolog.Logger) error {
	if admin.Email == "" || admin.Password == "" {
		log.Info().Msg("ADMIN_EMAIL not set, skipping admin seed")
		return nil
	}

	var count int64
	if err := db.Model(&models.Profile{}).Where("email = ?", admin.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if count > 0 {
		log.Debug().Msg("admin user already exists")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	adminUser := models.Profile{
		FullName: admin.FullName,
		Email:    admin.Email,
		Password: string(hashed),
		IsAdmin:  true,
		IsActive: true,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	log.Info().Str("email", admin.Email).Msg("admin user seeded")
	return nil
}
