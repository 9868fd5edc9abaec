package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a unique key is already taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrPlumberUnavailable is returned when a claim loses the race for a plumber
	ErrPlumberUnavailable = errors.New("plumber unavailable")
)

// Customer is a person requesting plumbing work. Phone is unique.
type Customer struct {
	ID        string    `json:"id" dynamodbav:"id" gorm:"primaryKey"`
	Phone     string    `json:"phone" dynamodbav:"phone" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name" dynamodbav:"name"`
	Address   string    `json:"address" dynamodbav:"address"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Plumber is a unit of supply
type Plumber struct {
	ID           string    `json:"id" dynamodbav:"id" gorm:"primaryKey"`
	Name         string    `json:"name" dynamodbav:"name"`
	Phone        string    `json:"phone" dynamodbav:"phone"`
	Email        string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	License      string    `json:"license_number" dynamodbav:"license_number" gorm:"column:license_number"`
	Available    bool      `json:"available" dynamodbav:"available" gorm:"index"`
	Rating       float64   `json:"rating" dynamodbav:"rating"`
	LocationLat  *float64  `json:"location_lat,omitempty" dynamodbav:"location_lat,omitempty"`
	LocationLng  *float64  `json:"location_lng,omitempty" dynamodbav:"location_lng,omitempty"`
	ServiceZones []string  `json:"service_zones,omitempty" dynamodbav:"service_zones,omitempty" gorm:"serializer:json"`
	CurrentJobID *string   `json:"current_job_id,omitempty" dynamodbav:"current_job_id,omitempty"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// HasLocation reports whether the plumber has shared a position
func (p *Plumber) HasLocation() bool {
	return p.LocationLat != nil && p.LocationLng != nil
}

// Job represents a plumbing job from intake to completion
type Job struct {
	ID           string  `json:"id" dynamodbav:"id" gorm:"primaryKey"`
	CustomerID   string  `json:"customer_id" dynamodbav:"customer_id" gorm:"index"`
	PlumberID    *string `json:"plumber_id,omitempty" dynamodbav:"plumber_id,omitempty" gorm:"index"`
	JobType      string  `json:"job_type" dynamodbav:"job_type"`
	Description  string  `json:"description" dynamodbav:"description"`
	Address      string  `json:"address" dynamodbav:"address"`
	Neighborhood string  `json:"neighborhood" dynamodbav:"neighborhood"`
	Latitude     float64 `json:"latitude" dynamodbav:"latitude"`
	Longitude    float64 `json:"longitude" dynamodbav:"longitude"`
	Status       string  `json:"status" dynamodbav:"status" gorm:"index"`

	// Triage
	UrgencyLevel          string     `json:"urgency_level" dynamodbav:"urgency_level"`
	UrgencyScore          int        `json:"urgency_score" dynamodbav:"urgency_score"`
	UrgencyConfidence     float64    `json:"urgency_confidence" dynamodbav:"urgency_confidence"`
	UrgencyReasoning      string     `json:"urgency_reasoning" dynamodbav:"urgency_reasoning"`
	EstimatedResponseTime string     `json:"estimated_response_time" dynamodbav:"estimated_response_time"`
	RespondBy             *time.Time `json:"respond_by,omitempty" dynamodbav:"respond_by,omitempty"`

	// Pricing
	BasePrice         float64  `json:"base_price" dynamodbav:"base_price"`
	UrgencyMultiplier float64  `json:"urgency_multiplier" dynamodbav:"urgency_multiplier"`
	TimeMultiplier    float64  `json:"time_multiplier" dynamodbav:"time_multiplier"`
	ZoneMultiplier    float64  `json:"zone_multiplier" dynamodbav:"zone_multiplier"`
	EstimatedPrice    float64  `json:"estimated_price" dynamodbav:"estimated_price"`
	FinalPrice        *float64 `json:"final_price,omitempty" dynamodbav:"final_price,omitempty"`
	PriceExplanation  string   `json:"price_explanation" dynamodbav:"price_explanation"`
	AfterHours        bool     `json:"after_hours" dynamodbav:"after_hours"`
	Weekend           bool     `json:"weekend" dynamodbav:"weekend"`
	Holiday           bool     `json:"holiday" dynamodbav:"holiday"`

	// Plumbers that declined this job are never matched to it again
	DeclinedPlumberIDs []string `json:"declined_plumber_ids,omitempty" dynamodbav:"declined_plumber_ids,omitempty" gorm:"serializer:json"`

	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" dynamodbav:"updated_at"`
	MatchedAt   *time.Time `json:"matched_at,omitempty" dynamodbav:"matched_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" dynamodbav:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" dynamodbav:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
	DeclinedAt  *time.Time `json:"declined_at,omitempty" dynamodbav:"declined_at,omitempty"`
}

// HasDeclined reports whether plumberID already turned this job down
func (j *Job) HasDeclined(plumberID string) bool {
	for _, id := range j.DeclinedPlumberIDs {
		if id == plumberID {
			return true
		}
	}
	return false
}

// Payment records a provider payment and its payout split
type Payment struct {
	ID                string     `json:"id" dynamodbav:"id" gorm:"primaryKey"`
	JobID             string     `json:"job_id" dynamodbav:"job_id" gorm:"index"`
	CustomerID        string     `json:"customer_id" dynamodbav:"customer_id"`
	PlumberID         string     `json:"plumber_id,omitempty" dynamodbav:"plumber_id,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id" dynamodbav:"provider_payment_id"`
	ClientSecret      string     `json:"client_secret,omitempty" dynamodbav:"client_secret,omitempty"`
	Status            string     `json:"status" dynamodbav:"status"` // pending, succeeded
	Currency          string     `json:"currency" dynamodbav:"currency"`
	Amount            float64    `json:"amount" dynamodbav:"amount"`
	PlatformFee       float64    `json:"platform_fee" dynamodbav:"platform_fee"`
	PlumberPayout     float64    `json:"plumber_payout" dynamodbav:"plumber_payout"`
	CreatedAt         time.Time  `json:"created_at" dynamodbav:"created_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty" dynamodbav:"confirmed_at,omitempty"`
}

// Payment statuses
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
)

// CustomerStorage defines the interface for customer data operations
type CustomerStorage interface {
	// FindCustomerByPhone returns ErrNotFound when no customer owns phone
	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)

	// CreateCustomer returns ErrAlreadyExists when the phone is taken
	CreateCustomer(ctx context.Context, customer *Customer) error
}

// JobStorage defines the interface for job data operations
type JobStorage interface {
	// CreateJob adds a new job
	CreateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// UpdateJob replaces an existing job
	UpdateJob(ctx context.Context, job *Job) error

	// GetJobsByStatus finds jobs by status
	GetJobsByStatus(ctx context.Context, status string) ([]*Job, error)

	// GetJobsByCustomer finds jobs requested by a customer
	GetJobsByCustomer(ctx context.Context, customerID string) ([]*Job, error)

	// GetJobsByPlumber finds jobs matched to a plumber
	GetJobsByPlumber(ctx context.Context, plumberID string) ([]*Job, error)

	// GetAllJobs returns all jobs (for dashboard)
	GetAllJobs(ctx context.Context) ([]*Job, error)
}

// PlumberStorage defines the interface for plumber data operations
type PlumberStorage interface {
	CreatePlumber(ctx context.Context, plumber *Plumber) error
	GetPlumber(ctx context.Context, plumberID string) (*Plumber, error)
	UpdatePlumber(ctx context.Context, plumber *Plumber) error
	ListPlumbers(ctx context.Context) ([]*Plumber, error)

	// ListAvailablePlumbers returns available plumbers in registration order
	ListAvailablePlumbers(ctx context.Context) ([]*Plumber, error)

	// ClaimPlumber flips available true->false and records jobID in one step.
	// It returns ErrPlumberUnavailable if the plumber was already taken.
	ClaimPlumber(ctx context.Context, plumberID, jobID string) error

	// ReleasePlumber makes the plumber available again and clears the current job
	ReleasePlumber(ctx context.Context, plumberID string) error
}

// PaymentStorage defines the interface for payment data operations
type PaymentStorage interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	UpdatePayment(ctx context.Context, payment *Payment) error
	GetPaymentsByJob(ctx context.Context, jobID string) ([]*Payment, error)
}

// Storage bundles every store the marketplace needs
type Storage interface {
	CustomerStorage
	JobStorage
	PlumberStorage
	PaymentStorage
}
