package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhub/api/models"
	"gorm.io/gorm"
)

type DashboardService struct {
	DB              *gorm.DB
	Policy          BookingPolicy
	DefaultPageSize int
	Now             func() time.Time
}

func NewDashboardService(db *gorm.DB, policy BookingPolicy, pageSize int) *DashboardService {
	return &DashboardService{DB: db, Policy: policy, DefaultPageSize: pageSize, Now: time.Now}
}

type Counterpart struct {
	ID       uuid.UUID  `json:"id"`
	FullName string     `json:"full_name"`
	Email    string     `json:"email"`
	TutorID  *uuid.UUID `json:"tutor_id,omitempty"`
	Subject  string     `json:"subject,omitempty"`
}

type DashboardBooking struct {
	models.Booking
	Student *Counterpart `json:"student,omitempty"`
	Tutor   *Counterpart `json:"tutor,omitempty"`
}

type Dashboard struct {
	Profile  *models.Profile    `json:"profile"`
	Tutor    *models.Tutor      `json:"tutor,omitempty"`
	Bookings []DashboardBooking `json:"bookings"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// Load assembles the caller's dashboard. Tutors see the students they
// teach, students see their tutors. Counterparts are fetched with one IN
// query per table. Rejected bookings are hidden from tutors, and pending
// bookings past their expiry are hidden from everyone.
func (s *DashboardService) Load(ctx context.Context, userID uuid.UUID, page, pageSize int) (*Dashboard, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = s.DefaultPageSize
	}
	db := s.DB.WithContext(ctx)

	var profile models.Profile
	if err := db.First(&profile, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, ErrProfileNotFound)
	}
	out := &Dashboard{Profile: &profile, Page: page, PageSize: pageSize, Bookings: []DashboardBooking{}}

	var bookings []models.Booking
	if profile.IsTutor {
		var tutor models.Tutor
		err := db.Where("user_id = ?", userID).First(&tutor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out.Tutor = &tutor
		if err := db.Where("tutor_id = ? AND status <> ?", tutor.ID, models.StatusRejected).
			Order("created_at desc").Find(&bookings).Error; err != nil {
			return nil, err
		}
	} else {
		if err := db.Where("student_id = ?", userID).Order("created_at desc").Find(&bookings).Error; err != nil {
			return nil, err
		}
	}

	now := s.Now().UTC()
	visible := bookings[:0]
	for i := range bookings {
		if s.Policy.Expired(&bookings[i], now) {
			continue
		}
		visible = append(visible, bookings[i])
	}
	out.Total = len(visible)

	start := (page - 1) * pageSize
	if start >= len(visible) {
		return out, nil
	}
	end := start + pageSize
	if end > len(visible) {
		end = len(visible)
	}
	visible = visible[start:end]

	if out.Tutor != nil {
		students, err := s.profilesByID(db, collect(visible, func(b *models.Booking) uuid.UUID { return b.StudentID }))
		if err != nil {
			return nil, err
		}
		for _, b := range visible {
			row := DashboardBooking{Booking: b}
			if p, ok := students[b.StudentID]; ok {
				row.Student = &Counterpart{ID: p.ID, FullName: p.FullName, Email: p.Email}
			}
			out.Bookings = append(out.Bookings, row)
		}
		return out, nil
	}

	tutorIDs := collect(visible, func(b *models.Booking) uuid.UUID { return b.TutorID })
	var tutors []models.Tutor
	if err := db.Where("id IN ?", tutorIDs).Find(&tutors).Error; err != nil {
		return nil, err
	}
	byTutor := make(map[uuid.UUID]models.Tutor, len(tutors))
	userIDs := make([]uuid.UUID, 0, len(tutors))
	for _, t := range tutors {
		byTutor[t.ID] = t
		userIDs = append(userIDs, t.UserID)
	}
	tutorProfiles, err := s.profilesByID(db, userIDs)
	if err != nil {
		return nil, err
	}

	for _, b := range visible {
		row := DashboardBooking{Booking: b}
		if t, ok := byTutor[b.TutorID]; ok {
			tid := t.ID
			c := &Counterpart{ID: t.UserID, TutorID: &tid, Subject: t.Subject}
			if p, ok := tutorProfiles[t.UserID]; ok {
				c.FullName = p.FullName
				c.Email = p.Email
			}
			row.Tutor = c
		}
		out.Bookings = append(out.Bookings, row)
	}
	return out, nil
}

func (s *DashboardService) profilesByID(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	out := make(map[uuid.UUID]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []models.Profile
	if err := db.Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

func collect(bookings []models.Booking, key func(*models.Booking) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(bookings))
	ids := make([]uuid.UUID, 0, len(bookings))
	for i := range bookings {
		id := key(&bookings[i])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
