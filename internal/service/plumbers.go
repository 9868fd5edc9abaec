package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/storage"
)

// RegisterPlumberRequest is a plumber signing up for leads
type RegisterPlumberRequest struct {
	Name          string   `json:"name"`
	Phone         string   `json:"phone"`
	Email         string   `json:"email"`
	LicenseNumber string   `json:"license_number"`
	Rating        *float64 `json:"rating,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	ServiceZones  []string `json:"service_zones,omitempty"`
}

// PlumberUpdate changes availability and/or location. Nil fields are left alone.
type PlumberUpdate struct {
	Available *bool    `json:"available,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// PlumberService manages plumber supply
type PlumberService struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewPlumberService creates a new plumber service
func NewPlumberService(store storage.Storage, logger *slog.Logger) *PlumberService {
	return &PlumberService{storage: store, logger: logger, now: time.Now}
}

// Register adds an available plumber
func (p *PlumberService) Register(ctx context.Context, req RegisterPlumberRequest) (*storage.Plumber, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", req.Name},
		{"phone", req.Phone},
		{"license_number", req.LicenseNumber},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if err := validateLocation(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	rating := 5.0
	if req.Rating != nil {
		if *req.Rating < 0 || *req.Rating > 5 {
			return nil, apperr.Validation("rating must be between 0 and 5")
		}
		rating = *req.Rating
	}

	now := p.now()
	plumber := &storage.Plumber{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        strings.TrimSpace(req.Email),
		License:      req.LicenseNumber,
		Available:    true,
		Rating:       rating,
		LocationLat:  req.Latitude,
		LocationLng:  req.Longitude,
		ServiceZones: req.ServiceZones,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.storage.CreatePlumber(ctx, plumber); err != nil {
		return nil, storageError(err, "plumber "+plumber.ID)
	}

	p.logger.InfoContext(ctx, "Plumber registered", "plumber_id", plumber.ID, "has_location", plumber.HasLocation())
	return plumber, nil
}

// Get retrieves a plumber by ID
func (p *PlumberService) Get(ctx context.Context, plumberID string) (*storage.Plumber, error) {
	plumber, err := p.storage.GetPlumber(ctx, plumberID)
	if err != nil {
		return nil, storageError(err, "plumber "+plumberID)
	}
	return plumber, nil
}

// List returns every plumber, best rated first
func (p *PlumberService) List(ctx context.Context) ([]*storage.Plumber, error) {
	plumbers, err := p.storage.ListPlumbers(ctx)
	if err != nil {
		return nil, storageError(err, "plumbers")
	}
	sort.SliceStable(plumbers, func(a, b int) bool {
		return plumbers[a].Rating > plumbers[b].Rating
	})
	return plumbers, nil
}

// UpdateAvailability changes a plumber's availability or location. A plumber
// on an active job cannot mark themselves available; the job releases them.
func (p *PlumberService) UpdateAvailability(ctx context.Context, plumberID string, update PlumberUpdate) (*storage.Plumber, error) {
	if err := validateLocation(update.Latitude, update.Longitude); err != nil {
		return nil, err
	}

	plumber, err := p.storage.GetPlumber(ctx, plumberID)
	if err != nil {
		return nil, storageError(err, "plumber "+plumberID)
	}

	if update.Available != nil {
		if *update.Available && plumber.CurrentJobID != nil {
			return nil, apperr.Conflict("plumber %s is on job %s", plumberID, *plumber.CurrentJobID)
		}
		plumber.Available = *update.Available
	}
	if update.Latitude != nil {
		plumber.LocationLat = update.Latitude
		plumber.LocationLng = update.Longitude
	}
	plumber.UpdatedAt = p.now()

	if err := p.storage.UpdatePlumber(ctx, plumber); err != nil {
		return nil, storageError(err, "plumber "+plumberID)
	}

	p.logger.InfoContext(ctx, "Plumber updated", "plumber_id", plumberID, "available", plumber.Available)
	return plumber, nil
}

// GetJobs returns a plumber's jobs, newest first
func (p *PlumberService) GetJobs(ctx context.Context, plumberID string) ([]*storage.Job, error) {
	if _, err := p.storage.GetPlumber(ctx, plumberID); err != nil {
		return nil, storageError(err, "plumber "+plumberID)
	}

	jobs, err := p.storage.GetJobsByPlumber(ctx, plumberID)
	if err != nil {
		return nil, storageError(err, "jobs")
	}
	return newestFirst(jobs), nil
}

func validateLocation(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return apperr.Validation("latitude and longitude must be given together")
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lng < -180 || *lng > 180) {
		return apperr.Validation("location %v,%v out of range", *lat, *lng)
	}
	return nil
}
