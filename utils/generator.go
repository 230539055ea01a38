package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tutorhub/api/models"
	"gorm.io/gorm"
)

const referenceLength = 12
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniqueReference returns a payment reference no booking uses yet.
func GenerateUniqueReference(tx *gorm.DB) (string, error) {
	for i := 0; i < 10; i++ {
		b := make([]byte, referenceLength)
		for j := range b {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letterBytes))))
			if err != nil {
				return "", err
			}
			b[j] = letterBytes[n.Int64()]
		}
		ref := "TH-" + string(b)

		var count int64
		if err := tx.Model(&models.Booking{}).Where("payment_intent_id = ?", ref).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", errors.New("could not generate a unique payment reference")
}

// EnsureProtocol prefixes https:// to links entered without a scheme.
func EnsureProtocol(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return link
	}
	return "https://" + link
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// CleanFileName turns a display name into a lowercase dash-separated token.
func CleanFileName(name string) string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "tutor"
	}
	return cleaned
}

// TranscriptFileName names an uploaded transcript after its owner.
func TranscriptFileName(fullName, tutorID, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".pdf"
	}
	return CleanFileName(fullName) + "-" + tutorID + "-transcript" + ext
}
