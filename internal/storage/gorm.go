package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStorage implements Storage on a relational database through gorm.
// Postgres is the production dialect; tests run the same code on SQLite.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage wraps an open connection. The connection must have been
// opened with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// OpenPostgres connects to dsn and migrates the marketplace tables
func OpenPostgres(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the marketplace tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Customer{}, &Plumber{}, &Job{}, &Payment{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (g *GormStorage) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	var customer Customer
	err := g.db.WithContext(ctx).Where("phone = ?", phone).First(&customer).Error
	if err != nil {
		return nil, notFound(err, "customer with phone "+phone)
	}
	return &customer, nil
}

func (g *GormStorage) CreateCustomer(ctx context.Context, customer *Customer) error {
	err := g.db.WithContext(ctx).Create(customer).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("customer with phone %s: %w", customer.Phone, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (g *GormStorage) CreateJob(ctx context.Context, job *Job) error {
	err := g.db.WithContext(ctx).Create(job).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("job %s: %w", job.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (g *GormStorage) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := g.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		return nil, notFound(err, "job "+jobID)
	}
	return &job, nil
}

func (g *GormStorage) UpdateJob(ctx context.Context, job *Job) error {
	res := g.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Select("*").Omit("created_at").Updates(job)
	if res.Error != nil {
		return fmt.Errorf("failed to update job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (g *GormStorage) GetJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	return g.findJobs(ctx, "status = ?", status)
}

func (g *GormStorage) GetJobsByCustomer(ctx context.Context, customerID string) ([]*Job, error) {
	return g.findJobs(ctx, "customer_id = ?", customerID)
}

func (g *GormStorage) GetJobsByPlumber(ctx context.Context, plumberID string) ([]*Job, error) {
	return g.findJobs(ctx, "plumber_id = ?", plumberID)
}

func (g *GormStorage) GetAllJobs(ctx context.Context) ([]*Job, error) {
	return g.findJobs(ctx, "1 = 1")
}

func (g *GormStorage) findJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	var jobs []*Job
	err := g.db.WithContext(ctx).Where(query, args...).Order("created_at asc, id asc").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (g *GormStorage) CreatePlumber(ctx context.Context, plumber *Plumber) error {
	err := g.db.WithContext(ctx).Create(plumber).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("plumber %s: %w", plumber.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create plumber: %w", err)
	}
	return nil
}

func (g *GormStorage) GetPlumber(ctx context.Context, plumberID string) (*Plumber, error) {
	var plumber Plumber
	if err := g.db.WithContext(ctx).Where("id = ?", plumberID).First(&plumber).Error; err != nil {
		return nil, notFound(err, "plumber "+plumberID)
	}
	return &plumber, nil
}

func (g *GormStorage) UpdatePlumber(ctx context.Context, plumber *Plumber) error {
	res := g.db.WithContext(ctx).Model(&Plumber{}).Where("id = ?", plumber.ID).Select("*").Omit("created_at").Updates(plumber)
	if res.Error != nil {
		return fmt.Errorf("failed to update plumber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("plumber %s: %w", plumber.ID, ErrNotFound)
	}
	return nil
}

func (g *GormStorage) ListPlumbers(ctx context.Context) ([]*Plumber, error) {
	var plumbers []*Plumber
	err := g.db.WithContext(ctx).Order("created_at asc, id asc").Find(&plumbers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plumbers: %w", err)
	}
	return plumbers, nil
}

func (g *GormStorage) ListAvailablePlumbers(ctx context.Context) ([]*Plumber, error) {
	var plumbers []*Plumber
	err := g.db.WithContext(ctx).Where("available = ?", true).Order("created_at asc, id asc").Find(&plumbers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list available plumbers: %w", err)
	}
	return plumbers, nil
}

// ClaimPlumber is a single conditional UPDATE; the row count tells the winner.
func (g *GormStorage) ClaimPlumber(ctx context.Context, plumberID, jobID string) error {
	res := g.db.WithContext(ctx).Model(&Plumber{}).
		Where("id = ? AND available = ?", plumberID, true).
		Updates(map[string]interface{}{
			"available":      false,
			"current_job_id": jobID,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim plumber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetPlumber(ctx, plumberID); err != nil {
			return err
		}
		return fmt.Errorf("plumber %s: %w", plumberID, ErrPlumberUnavailable)
	}
	return nil
}

func (g *GormStorage) ReleasePlumber(ctx context.Context, plumberID string) error {
	res := g.db.WithContext(ctx).Model(&Plumber{}).
		Where("id = ?", plumberID).
		Updates(map[string]interface{}{
			"available":      true,
			"current_job_id": nil,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release plumber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("plumber %s: %w", plumberID, ErrNotFound)
	}
	return nil
}

func (g *GormStorage) CreatePayment(ctx context.Context, payment *Payment) error {
	err := g.db.WithContext(ctx).Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("payment %s: %w", payment.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (g *GormStorage) UpdatePayment(ctx context.Context, payment *Payment) error {
	res := g.db.WithContext(ctx).Model(&Payment{}).Where("id = ?", payment.ID).Select("*").Omit("created_at").Updates(payment)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", payment.ID, ErrNotFound)
	}
	return nil
}

func (g *GormStorage) GetPaymentsByJob(ctx context.Context, jobID string) ([]*Payment, error) {
	var payments []*Payment
	err := g.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at asc").Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
