package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/lifecycle"
	"marketplace-service/internal/payments"
	"marketplace-service/internal/storage"
)

// PaymentConfirmation is the result of settling a job
type PaymentConfirmation struct {
	Payment *storage.Payment `json:"payment"`
	Job     *storage.Job     `json:"job"`
}

// PaymentService takes customer payments and records the payout split
type PaymentService struct {
	storage  storage.Storage
	jobs     *JobService
	gateway  payments.Gateway
	currency string
	logger   *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store storage.Storage, jobs *JobService, gateway payments.Gateway, currency string, logger *slog.Logger) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		storage:  store,
		jobs:     jobs,
		gateway:  gateway,
		currency: currency,
		logger:   logger,
	}
}

// CreateIntent opens a provider payment for a job. A zero amount charges the
// final price if one is recorded, otherwise the estimate.
func (p *PaymentService) CreateIntent(ctx context.Context, jobID string, amount float64) (*storage.Payment, error) {
	if jobID == "" {
		return nil, apperr.Validation("job_id is required")
	}
	if amount < 0 {
		return nil, apperr.Validation("amount must not be negative")
	}

	job, err := p.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "job "+jobID)
	}
	if err := p.ensureUnpaid(ctx, jobID); err != nil {
		return nil, err
	}

	if amount == 0 {
		amount = agreedPrice(job)
	}
	split := payments.Split(amount)
	if payments.ToCents(split.Amount) <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	intent, err := p.gateway.CreatePaymentIntent(ctx, payments.ToCents(split.Amount), p.currency, paymentMetadata(job))
	if err != nil {
		return nil, apperr.Upstream(err, "payment provider rejected intent")
	}

	payment := &storage.Payment{
		ID:                uuid.NewString(),
		JobID:             job.ID,
		CustomerID:        job.CustomerID,
		ProviderPaymentID: intent.ProviderPaymentID,
		ClientSecret:      intent.ClientSecret,
		Status:            storage.PaymentPending,
		Currency:          p.currency,
		Amount:            split.Amount,
		PlatformFee:       split.PlatformFee,
		PlumberPayout:     split.PlumberPayout,
		CreatedAt:         p.jobs.now(),
	}
	if job.PlumberID != nil {
		payment.PlumberID = *job.PlumberID
	}

	if err := p.storage.CreatePayment(ctx, payment); err != nil {
		return nil, storageError(err, "payment "+payment.ID)
	}

	p.logger.InfoContext(ctx, "Payment intent created",
		"job_id", job.ID,
		"payment_id", payment.ID,
		"provider_payment_id", payment.ProviderPaymentID,
		"amount", payment.Amount,
	)
	return payment, nil
}

// Confirm settles a job: the split is taken from the final agreed price and a
// started job is completed through the state machine. Confirming a job twice
// is a conflict.
func (p *PaymentService) Confirm(ctx context.Context, jobID, providerPaymentID string, amount float64) (*PaymentConfirmation, error) {
	if jobID == "" {
		return nil, apperr.Validation("job_id is required")
	}
	if amount < 0 {
		return nil, apperr.Validation("amount must not be negative")
	}

	unlock := p.jobs.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := p.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "job "+jobID)
	}

	existing, err := p.storage.GetPaymentsByJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "payments")
	}
	var payment *storage.Payment
	for _, candidate := range existing {
		if candidate.Status == storage.PaymentSucceeded {
			return nil, apperr.Conflict("job %s is already paid", jobID)
		}
		if providerPaymentID != "" && candidate.ProviderPaymentID == providerPaymentID {
			payment = candidate
		}
	}
	if providerPaymentID != "" && payment == nil {
		return nil, apperr.NotFound("payment %s not found for job %s", providerPaymentID, jobID)
	}

	if amount == 0 {
		switch {
		case job.FinalPrice != nil:
			amount = *job.FinalPrice
		case payment != nil:
			amount = payment.Amount
		default:
			amount = job.EstimatedPrice
		}
	}

	switch lifecycle.Status(job.Status) {
	case lifecycle.Started:
		if err := p.jobs.transition(ctx, job, lifecycle.Completed, &amount); err != nil {
			return nil, err
		}
	case lifecycle.Completed:
	default:
		return nil, apperr.Conflict("job %s is %s and cannot be paid yet", jobID, job.Status)
	}

	// The split always follows the price the job was closed at
	final := amount
	if job.FinalPrice != nil {
		final = *job.FinalPrice
	}
	split := payments.Split(final)
	now := p.jobs.now()

	isNew := payment == nil
	if isNew {
		payment = &storage.Payment{
			ID:                uuid.NewString(),
			JobID:             job.ID,
			CustomerID:        job.CustomerID,
			ProviderPaymentID: providerPaymentID,
			Currency:          p.currency,
			CreatedAt:         now,
		}
	}
	if payment.PlumberID == "" && job.PlumberID != nil {
		payment.PlumberID = *job.PlumberID
	}
	payment.Status = storage.PaymentSucceeded
	payment.Amount = split.Amount
	payment.PlatformFee = split.PlatformFee
	payment.PlumberPayout = split.PlumberPayout
	payment.ConfirmedAt = &now

	if isNew {
		err = p.storage.CreatePayment(ctx, payment)
	} else {
		err = p.storage.UpdatePayment(ctx, payment)
	}
	if err != nil {
		return nil, storageError(err, "payment "+payment.ID)
	}

	p.logger.InfoContext(ctx, "Payment confirmed",
		"job_id", job.ID,
		"payment_id", payment.ID,
		"final_price", split.Amount,
		"platform_fee", split.PlatformFee,
		"plumber_payout", split.PlumberPayout,
	)
	return &PaymentConfirmation{Payment: payment, Job: job}, nil
}

// GetPayments lists the payments recorded for a job
func (p *PaymentService) GetPayments(ctx context.Context, jobID string) ([]*storage.Payment, error) {
	if _, err := p.storage.GetJob(ctx, jobID); err != nil {
		return nil, storageError(err, "job "+jobID)
	}
	found, err := p.storage.GetPaymentsByJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "payments")
	}
	return found, nil
}

func (p *PaymentService) ensureUnpaid(ctx context.Context, jobID string) error {
	existing, err := p.storage.GetPaymentsByJob(ctx, jobID)
	if err != nil {
		return storageError(err, "payments")
	}
	for _, payment := range existing {
		if payment.Status == storage.PaymentSucceeded {
			return apperr.Conflict("job %s is already paid", jobID)
		}
	}
	return nil
}

func agreedPrice(job *storage.Job) float64 {
	if job.FinalPrice != nil {
		return *job.FinalPrice
	}
	return job.EstimatedPrice
}

func paymentMetadata(job *storage.Job) map[string]string {
	metadata := map[string]string{
		"job_id":      job.ID,
		"customer_id": job.CustomerID,
	}
	if job.PlumberID != nil {
		metadata["plumber_id"] = *job.PlumberID
	}
	return metadata
}
