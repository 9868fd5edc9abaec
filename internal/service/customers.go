package service

import (
	"context"
	"strings"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/storage"
)

// CustomerService answers customer lookups. Customers are created by job intake.
type CustomerService struct {
	storage storage.Storage
}

// NewCustomerService creates a new customer service
func NewCustomerService(store storage.Storage) *CustomerService {
	return &CustomerService{storage: store}
}

// FindByPhone returns the customer who booked from phone
func (c *CustomerService) FindByPhone(ctx context.Context, phone string) (*storage.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, apperr.Validation("phone is required")
	}

	customer, err := c.storage.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, storageError(err, "customer with phone "+phone)
	}
	return customer, nil
}

// GetJobs returns a customer's jobs, newest first
func (c *CustomerService) GetJobs(ctx context.Context, customerID string) ([]*storage.Job, error) {
	jobs, err := c.storage.GetJobsByCustomer(ctx, customerID)
	if err != nil {
		return nil, storageError(err, "jobs")
	}
	return newestFirst(jobs), nil
}
