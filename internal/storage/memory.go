package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements Storage using in-memory maps. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryStorage struct {
	customers       map[string]*Customer // by phone
	jobs            map[string]*Job
	plumbers        map[string]*Plumber
	payments        map[string]*Payment
	plumberSequence map[string]int
	nextSequence    int
	mu              sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		customers:       make(map[string]*Customer),
		jobs:            make(map[string]*Job),
		plumbers:        make(map[string]*Plumber),
		payments:        make(map[string]*Payment),
		plumberSequence: make(map[string]int),
	}
}

func (m *MemoryStorage) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, exists := m.customers[phone]
	if !exists {
		return nil, fmt.Errorf("customer with phone %s: %w", phone, ErrNotFound)
	}

	c := *customer
	return &c, nil
}

func (m *MemoryStorage) CreateCustomer(ctx context.Context, customer *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.customers[customer.Phone]; exists {
		return fmt.Errorf("customer with phone %s: %w", customer.Phone, ErrAlreadyExists)
	}

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	c := *customer
	m.customers[customer.Phone] = &c
	return nil
}

func (m *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, ErrAlreadyExists)
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStorage) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	return cloneJob(job), nil
}

func (m *MemoryStorage) UpdateJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}

	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStorage) GetJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	return m.filterJobs(func(j *Job) bool { return j.Status == status }), nil
}

func (m *MemoryStorage) GetJobsByCustomer(ctx context.Context, customerID string) ([]*Job, error) {
	return m.filterJobs(func(j *Job) bool { return j.CustomerID == customerID }), nil
}

func (m *MemoryStorage) GetJobsByPlumber(ctx context.Context, plumberID string) ([]*Job, error) {
	return m.filterJobs(func(j *Job) bool { return j.PlumberID != nil && *j.PlumberID == plumberID }), nil
}

func (m *MemoryStorage) GetAllJobs(ctx context.Context) ([]*Job, error) {
	return m.filterJobs(func(*Job) bool { return true }), nil
}

// filterJobs returns matching jobs oldest first
func (m *MemoryStorage) filterJobs(keep func(*Job) bool) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Job
	for _, job := range m.jobs {
		if keep(job) {
			result = append(result, cloneJob(job))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *MemoryStorage) CreatePlumber(ctx context.Context, plumber *Plumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plumbers[plumber.ID]; exists {
		return fmt.Errorf("plumber %s: %w", plumber.ID, ErrAlreadyExists)
	}

	now := time.Now()
	if plumber.CreatedAt.IsZero() {
		plumber.CreatedAt = now
	}
	plumber.UpdatedAt = now
	m.plumbers[plumber.ID] = clonePlumber(plumber)
	m.nextSequence++
	m.plumberSequence[plumber.ID] = m.nextSequence
	return nil
}

func (m *MemoryStorage) GetPlumber(ctx context.Context, plumberID string) (*Plumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plumber, exists := m.plumbers[plumberID]
	if !exists {
		return nil, fmt.Errorf("plumber %s: %w", plumberID, ErrNotFound)
	}

	return clonePlumber(plumber), nil
}

func (m *MemoryStorage) UpdatePlumber(ctx context.Context, plumber *Plumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plumbers[plumber.ID]; !exists {
		return fmt.Errorf("plumber %s: %w", plumber.ID, ErrNotFound)
	}

	plumber.UpdatedAt = time.Now()
	m.plumbers[plumber.ID] = clonePlumber(plumber)
	return nil
}

func (m *MemoryStorage) ListPlumbers(ctx context.Context) ([]*Plumber, error) {
	return m.filterPlumbers(func(*Plumber) bool { return true }), nil
}

func (m *MemoryStorage) ListAvailablePlumbers(ctx context.Context) ([]*Plumber, error) {
	return m.filterPlumbers(func(p *Plumber) bool { return p.Available }), nil
}

// filterPlumbers returns matching plumbers in registration order
func (m *MemoryStorage) filterPlumbers(keep func(*Plumber) bool) []*Plumber {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Plumber
	for _, plumber := range m.plumbers {
		if keep(plumber) {
			result = append(result, clonePlumber(plumber))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return m.plumberSequence[result[i].ID] < m.plumberSequence[result[j].ID]
	})
	return result
}

func (m *MemoryStorage) ClaimPlumber(ctx context.Context, plumberID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plumber, exists := m.plumbers[plumberID]
	if !exists {
		return fmt.Errorf("plumber %s: %w", plumberID, ErrNotFound)
	}
	if !plumber.Available {
		return fmt.Errorf("plumber %s: %w", plumberID, ErrPlumberUnavailable)
	}

	plumber.Available = false
	plumber.CurrentJobID = &jobID
	plumber.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) ReleasePlumber(ctx context.Context, plumberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plumber, exists := m.plumbers[plumberID]
	if !exists {
		return fmt.Errorf("plumber %s: %w", plumberID, ErrNotFound)
	}

	plumber.Available = true
	plumber.CurrentJobID = nil
	plumber.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) CreatePayment(ctx context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[payment.ID]; exists {
		return fmt.Errorf("payment %s: %w", payment.ID, ErrAlreadyExists)
	}

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	p := *payment
	m.payments[payment.ID] = &p
	return nil
}

func (m *MemoryStorage) UpdatePayment(ctx context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[payment.ID]; !exists {
		return fmt.Errorf("payment %s: %w", payment.ID, ErrNotFound)
	}

	p := *payment
	m.payments[payment.ID] = &p
	return nil
}

func (m *MemoryStorage) GetPaymentsByJob(ctx context.Context, jobID string) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, payment := range m.payments {
		if payment.JobID == jobID {
			p := *payment
			result = append(result, &p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneJob(job *Job) *Job {
	j := *job
	if job.DeclinedPlumberIDs != nil {
		j.DeclinedPlumberIDs = append([]string(nil), job.DeclinedPlumberIDs...)
	}
	return &j
}

func clonePlumber(plumber *Plumber) *Plumber {
	p := *plumber
	if plumber.ServiceZones != nil {
		p.ServiceZones = append([]string(nil), plumber.ServiceZones...)
	}
	return &p
}
