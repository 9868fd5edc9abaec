package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStorageTestSuite runs the relational store against in-memory SQLite
type GormStorageTestSuite struct {
	suite.Suite
	db    *gorm.DB
	ctx   context.Context
	store *GormStorage
}

func TestGormStorageSuite(t *testing.T) {
	suite.Run(t, new(GormStorageTestSuite))
}

func (s *GormStorageTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")
	require.NoError(s.T(), Migrate(db), "Failed to run database migrations")

	s.db = db
	s.store = NewGormStorage(db)
	s.ctx = context.Background()
}

func (s *GormStorageTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (s *GormStorageTestSuite) createPlumber(id string, available bool, created time.Time) *Plumber {
	lat, lng := 29.7604, -95.3698
	plumber := &Plumber{
		ID:           id,
		Name:         "Plumber " + id,
		Available:    available,
		Rating:       4.5,
		LocationLat:  &lat,
		LocationLng:  &lng,
		ServiceZones: []string{"montrose", "midtown"},
		CreatedAt:    created,
	}
	s.Require().NoError(s.store.CreatePlumber(s.ctx, plumber))
	return plumber
}

func (s *GormStorageTestSuite) TestCustomerPhoneIsUnique() {
	_, err := s.store.FindCustomerByPhone(s.ctx, "+17135550100")
	s.ErrorIs(err, ErrNotFound)

	s.Require().NoError(s.store.CreateCustomer(s.ctx, &Customer{ID: "c1", Phone: "+17135550100", Name: "Ana"}))

	err = s.store.CreateCustomer(s.ctx, &Customer{ID: "c2", Phone: "+17135550100", Name: "Ana"})
	s.ErrorIs(err, ErrAlreadyExists)

	customer, err := s.store.FindCustomerByPhone(s.ctx, "+17135550100")
	s.Require().NoError(err)
	s.Equal("c1", customer.ID)
}

func (s *GormStorageTestSuite) TestJobRoundTrip() {
	job := &Job{
		ID:                 "job-1",
		CustomerID:         "c1",
		JobType:            "leak",
		Status:             "pending",
		UrgencyLevel:       "HIGH",
		EstimatedPrice:     119.99,
		DeclinedPlumberIDs: []string{"p9"},
	}
	s.Require().NoError(s.store.CreateJob(s.ctx, job))
	s.ErrorIs(s.store.CreateJob(s.ctx, job), ErrAlreadyExists)

	got, err := s.store.GetJob(s.ctx, "job-1")
	s.Require().NoError(err)
	s.Equal("HIGH", got.UrgencyLevel)
	s.Equal([]string{"p9"}, got.DeclinedPlumberIDs)
	s.Nil(got.FinalPrice)

	plumberID := "p1"
	final := 150.0
	now := time.Now()
	got.Status = "completed"
	got.PlumberID = &plumberID
	got.FinalPrice = &final
	got.CompletedAt = &now
	s.Require().NoError(s.store.UpdateJob(s.ctx, got))

	updated, err := s.store.GetJob(s.ctx, "job-1")
	s.Require().NoError(err)
	s.Equal("completed", updated.Status)
	s.Require().NotNil(updated.FinalPrice)
	s.Equal(150.0, *updated.FinalPrice)

	byPlumber, err := s.store.GetJobsByPlumber(s.ctx, "p1")
	s.Require().NoError(err)
	s.Len(byPlumber, 1)

	byStatus, err := s.store.GetJobsByStatus(s.ctx, "pending")
	s.Require().NoError(err)
	s.Empty(byStatus)

	_, err = s.store.GetJob(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.store.UpdateJob(s.ctx, &Job{ID: "missing"}), ErrNotFound)
}

func (s *GormStorageTestSuite) TestJobsByCustomerOldestFirst() {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.CreateJob(s.ctx, &Job{ID: "b", CustomerID: "c1", CreatedAt: base.Add(time.Hour)}))
	s.Require().NoError(s.store.CreateJob(s.ctx, &Job{ID: "a", CustomerID: "c1", CreatedAt: base}))
	s.Require().NoError(s.store.CreateJob(s.ctx, &Job{ID: "c", CustomerID: "c2", CreatedAt: base}))

	jobs, err := s.store.GetJobsByCustomer(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal("a", jobs[0].ID)
	s.Equal("b", jobs[1].ID)

	all, err := s.store.GetAllJobs(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *GormStorageTestSuite) TestClaimAndReleasePlumber() {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.createPlumber("p1", true, base)
	s.createPlumber("p2", false, base.Add(time.Minute))
	s.createPlumber("p3", true, base.Add(2*time.Minute))

	available, err := s.store.ListAvailablePlumbers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(available, 2)
	s.Equal("p1", available[0].ID)
	s.Equal([]string{"montrose", "midtown"}, available[0].ServiceZones)

	s.Require().NoError(s.store.ClaimPlumber(s.ctx, "p1", "job-1"))
	s.ErrorIs(s.store.ClaimPlumber(s.ctx, "p1", "job-2"), ErrPlumberUnavailable)
	s.ErrorIs(s.store.ClaimPlumber(s.ctx, "ghost", "job-2"), ErrNotFound)

	claimed, err := s.store.GetPlumber(s.ctx, "p1")
	s.Require().NoError(err)
	s.False(claimed.Available)
	s.Require().NotNil(claimed.CurrentJobID)
	s.Equal("job-1", *claimed.CurrentJobID)

	s.Require().NoError(s.store.ReleasePlumber(s.ctx, "p1"))
	released, err := s.store.GetPlumber(s.ctx, "p1")
	s.Require().NoError(err)
	s.True(released.Available)
	s.Nil(released.CurrentJobID)

	s.ErrorIs(s.store.ReleasePlumber(s.ctx, "ghost"), ErrNotFound)
}

func (s *GormStorageTestSuite) TestUpdatePlumber() {
	plumber := s.createPlumber("p1", true, time.Now())

	plumber.Available = false
	plumber.Rating = 4.9
	s.Require().NoError(s.store.UpdatePlumber(s.ctx, plumber))

	got, err := s.store.GetPlumber(s.ctx, "p1")
	s.Require().NoError(err)
	s.False(got.Available)
	s.Equal(4.9, got.Rating)

	all, err := s.store.ListPlumbers(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)

	s.ErrorIs(s.store.UpdatePlumber(s.ctx, &Plumber{ID: "ghost"}), ErrNotFound)
}

func (s *GormStorageTestSuite) TestPayments() {
	payment := &Payment{ID: "pay-1", JobID: "job-1", Status: PaymentPending, Amount: 150, Currency: "usd"}
	s.Require().NoError(s.store.CreatePayment(s.ctx, payment))

	now := time.Now()
	payment.Status = PaymentSucceeded
	payment.PlatformFee = 30
	payment.PlumberPayout = 120
	payment.ConfirmedAt = &now
	s.Require().NoError(s.store.UpdatePayment(s.ctx, payment))

	payments, err := s.store.GetPaymentsByJob(s.ctx, "job-1")
	s.Require().NoError(err)
	s.Require().Len(payments, 1)
	s.Equal(PaymentSucceeded, payments[0].Status)
	s.Equal(120.0, payments[0].PlumberPayout)
}
