package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/kinesis"
	"marketplace-service/internal/lifecycle"
	"marketplace-service/internal/matching"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/payments"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/storage"
	"marketplace-service/internal/urgency"
)

// Intake outcomes
const (
	OutcomeCreated    = "created"
	OutcomeComingSoon = "coming_soon"
)

// IntakeRequest is a customer booking as it arrives at the edge
type IntakeRequest struct {
	Phone        string   `json:"phone"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	JobType      string   `json:"job_type"`
	IssueType    string   `json:"issue_type,omitempty"` // legacy alias for job_type
	Description  string   `json:"description"`
	Neighborhood string   `json:"neighborhood"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	AfterHours   bool     `json:"after_hours"`
	Weekend      bool     `json:"weekend"`
	Holiday      bool     `json:"holiday"`
}

func (r IntakeRequest) normalized() IntakeRequest {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Name = strings.TrimSpace(r.Name)
	r.Address = strings.TrimSpace(r.Address)
	if strings.TrimSpace(r.JobType) == "" {
		r.JobType = r.IssueType
	}
	r.JobType = strings.ToLower(strings.TrimSpace(r.JobType))
	r.Neighborhood = strings.TrimSpace(r.Neighborhood)
	return r
}

// Validate checks required fields and coordinate ranges
func (r IntakeRequest) Validate() error {
	var missing []string
	if r.Phone == "" {
		missing = append(missing, "phone")
	}
	if r.Address == "" {
		missing = append(missing, "address")
	}
	if r.JobType == "" {
		missing = append(missing, "job_type")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	return validateLocation(r.Latitude, r.Longitude)
}

// IntakeResult describes what happened to a booking
type IntakeResult struct {
	Outcome        string             `json:"outcome"`
	Message        string             `json:"message,omitempty"`
	Job            *storage.Job       `json:"job,omitempty"`
	Customer       *storage.Customer  `json:"customer,omitempty"`
	Urgency        *urgency.Result    `json:"urgency,omitempty"`
	Price          *pricing.Breakdown `json:"price,omitempty"`
	MatchedPlumber *storage.Plumber   `json:"matched_plumber,omitempty"`
}

// StatusUpdate is a requested lifecycle transition
type StatusUpdate struct {
	Status     string   `json:"status"`
	FinalPrice *float64 `json:"final_price,omitempty"`
}

// JobService handles job intake, matching and lifecycle operations
type JobService struct {
	storage     storage.Storage
	classifier  *urgency.Classifier
	pricing     *pricing.Engine
	selector    matching.Selector
	notifier    notify.Notifier
	streamer    *kinesis.Streamer
	logger      *slog.Logger
	locks       *keyedMutex
	zones       map[string]bool
	location    *time.Location
	now         func() time.Time
	concurrency int
}

// NewJobService creates a new job service instance
func NewJobService(store storage.Storage, classifier *urgency.Classifier, engine *pricing.Engine, selector matching.Selector, logger *slog.Logger) *JobService {
	return &JobService{
		storage:     store,
		classifier:  classifier,
		pricing:     engine,
		selector:    selector,
		notifier:    notify.NewLogNotifier(logger),
		logger:      logger,
		locks:       newKeyedMutex(),
		location:    time.Local,
		now:         time.Now,
		concurrency: 4,
	}
}

// SetKinesisStreamer sets the Kinesis streamer for job events
func (j *JobService) SetKinesisStreamer(streamer *kinesis.Streamer) {
	j.streamer = streamer
}

// SetNotifier replaces the log notifier
func (j *JobService) SetNotifier(notifier notify.Notifier) {
	j.notifier = notifier
}

// SetServiceZones limits intake to the given neighborhoods. An empty list serves everywhere.
func (j *JobService) SetServiceZones(zones []string) {
	j.zones = nil
	for _, z := range zones {
		if z = pricing.NormalizeZone(z); z != "" {
			if j.zones == nil {
				j.zones = make(map[string]bool)
			}
			j.zones[z] = true
		}
	}
}

// SetClock sets the time source and the zone used to derive after-hours and weekend flags
func (j *JobService) SetClock(now func() time.Time, loc *time.Location) {
	if now != nil {
		j.now = now
	}
	if loc != nil {
		j.location = loc
	}
}

// SetConcurrency bounds how many pending jobs are re-matched at once
func (j *JobService) SetConcurrency(n int) {
	if n > 0 {
		j.concurrency = n
	}
}

// Serves reports whether intake is open for neighborhood
func (j *JobService) Serves(neighborhood string) bool {
	zone := pricing.NormalizeZone(neighborhood)
	return len(j.zones) == 0 || zone == "" || j.zones[zone]
}

// Quote classifies and prices a request without creating anything
func (j *JobService) Quote(req IntakeRequest) (urgency.Result, pricing.Breakdown) {
	req = req.normalized()
	triage := j.classifier.Classify(req.Description, req.JobType)
	return triage, j.pricing.Quote(req.JobType, triage.Level, req.Neighborhood, j.timeFlags(req))
}

// timeFlags merges the caller's explicit flags with the ones derived from the clock
func (j *JobService) timeFlags(req IntakeRequest) pricing.TimeFlags {
	flags := j.pricing.FlagsAt(j.now().In(j.location))
	flags.AfterHours = flags.AfterHours || req.AfterHours
	flags.Weekend = flags.Weekend || req.Weekend
	flags.Holiday = flags.Holiday || req.Holiday
	return flags
}

// CreateJob runs the intake pipeline: triage, quote, persist and match
func (j *JobService) CreateJob(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !j.Serves(req.Neighborhood) {
		j.logger.InfoContext(ctx, "Intake outside service area", "neighborhood", req.Neighborhood)
		return &IntakeResult{
			Outcome: OutcomeComingSoon,
			Message: "We are not serving " + req.Neighborhood + " yet. We'll text you when we launch there.",
		}, nil
	}

	customer, err := j.findOrCreateCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	triage, quote := j.Quote(req)
	now := j.now()
	respondBy := now.Add(time.Duration(triage.ResponseMinutes) * time.Minute)

	job := &storage.Job{
		ID:                    uuid.NewString(),
		CustomerID:            customer.ID,
		JobType:               req.JobType,
		Description:           req.Description,
		Address:               req.Address,
		Neighborhood:          req.Neighborhood,
		Status:                string(lifecycle.Pending),
		UrgencyLevel:          string(triage.Level),
		UrgencyScore:          triage.Score,
		UrgencyConfidence:     triage.Confidence,
		UrgencyReasoning:      triage.Reasoning,
		EstimatedResponseTime: triage.EstimatedResponseTime,
		RespondBy:             &respondBy,
		BasePrice:             quote.BasePrice,
		UrgencyMultiplier:     quote.UrgencyMultiplier,
		TimeMultiplier:        quote.TimeMultiplier,
		ZoneMultiplier:        quote.ZoneMultiplier,
		EstimatedPrice:        quote.FinalPrice,
		PriceExplanation:      quote.Explanation,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	flags := j.timeFlags(req)
	job.AfterHours, job.Weekend, job.Holiday = flags.AfterHours, flags.Weekend, flags.Holiday
	if req.Latitude != nil {
		job.Latitude, job.Longitude = *req.Latitude, *req.Longitude
	}

	// Hold the job lock until the first match attempt so the processor
	// cannot race intake for the same job.
	unlock := j.locks.Lock("job:" + job.ID)
	defer unlock()

	if err := j.storage.CreateJob(ctx, job); err != nil {
		return nil, storageError(err, "job "+job.ID)
	}

	j.logger.InfoContext(ctx, "Job created",
		"job_id", job.ID,
		"customer_id", customer.ID,
		"job_type", job.JobType,
		"urgency_level", job.UrgencyLevel,
		"estimated_price", job.EstimatedPrice,
	)
	j.streamer.PublishJobEvent(ctx, kinesis.EventCreated, job)

	// Try to match immediately; without supply the job stays pending
	plumber, err := j.match(ctx, job)
	if err != nil {
		j.logger.WarnContext(ctx, "Failed to match job at intake", "job_id", job.ID, "error", err)
	}

	return &IntakeResult{
		Outcome:        OutcomeCreated,
		Job:            job,
		Customer:       customer,
		Urgency:        &triage,
		Price:          &quote,
		MatchedPlumber: plumber,
	}, nil
}

// findOrCreateCustomer is serialized per phone. The storage uniqueness check
// backs up the in-process lock when several replicas share a store.
func (j *JobService) findOrCreateCustomer(ctx context.Context, req IntakeRequest) (*storage.Customer, error) {
	unlock := j.locks.Lock("phone:" + req.Phone)
	defer unlock()

	const attempts = 3
	for i := 0; i < attempts; i++ {
		customer, err := j.storage.FindCustomerByPhone(ctx, req.Phone)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, storageError(err, "customer")
		}

		customer = &storage.Customer{
			ID:        uuid.NewString(),
			Phone:     req.Phone,
			Name:      req.Name,
			Address:   req.Address,
			CreatedAt: j.now(),
		}
		err = j.storage.CreateCustomer(ctx, customer)
		if err == nil {
			j.logger.InfoContext(ctx, "Customer created", "customer_id", customer.ID)
			return customer, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, storageError(err, "customer")
		}
		// Lost the race to another writer; read theirs
	}

	return nil, apperr.Conflict("customer with phone %s is being created concurrently", req.Phone)
}

// match selects and claims a plumber for job, moving it to matched. It
// returns nil without error when no plumber is available. Callers hold the
// job lock.
func (j *JobService) match(ctx context.Context, job *storage.Job) (*storage.Plumber, error) {
	if err := lifecycle.Validate(lifecycle.Status(job.Status), lifecycle.Matched); err != nil {
		return nil, err
	}

	available, err := j.storage.ListAvailablePlumbers(ctx)
	if err != nil {
		return nil, storageError(err, "plumbers")
	}

	candidates := make([]*storage.Plumber, 0, len(available))
	for _, p := range available {
		if !job.HasDeclined(p.ID) {
			candidates = append(candidates, p)
		}
	}

	selector := j.selector
	loc, hasLocation := jobLocation(job)
	if !hasLocation {
		selector = matching.FirstAvailable{}
	}

	for {
		plumber := selector.Select(loc, candidates)
		if plumber == nil {
			j.logger.DebugContext(ctx, "No plumber available", "job_id", job.ID, "candidates", len(available))
			return nil, nil
		}

		err := j.storage.ClaimPlumber(ctx, plumber.ID, job.ID)
		if errors.Is(err, storage.ErrPlumberUnavailable) || errors.Is(err, storage.ErrNotFound) {
			// Someone else got there first; try the next best
			candidates = without(candidates, plumber.ID)
			continue
		}
		if err != nil {
			return nil, storageError(err, "plumber "+plumber.ID)
		}

		previous := *job
		now := j.now()
		job.PlumberID = &plumber.ID
		job.Status = string(lifecycle.Matched)
		job.MatchedAt = &now
		job.UpdatedAt = now

		if err := j.storage.UpdateJob(ctx, job); err != nil {
			*job = previous
			j.release(ctx, plumber.ID)
			return nil, storageError(err, "job "+job.ID)
		}

		plumber.Available = false
		plumber.CurrentJobID = &job.ID

		j.logger.InfoContext(ctx, "Job matched", "job_id", job.ID, "plumber_id", plumber.ID, "urgency_level", job.UrgencyLevel)
		j.streamer.PublishJobEvent(ctx, kinesis.EventMatched, job)
		j.notifier.PlumberMatched(ctx, plumber, job)
		return plumber, nil
	}
}

func (j *JobService) release(ctx context.Context, plumberID string) {
	if err := j.storage.ReleasePlumber(ctx, plumberID); err != nil {
		j.logger.ErrorContext(ctx, "Failed to release plumber", "plumber_id", plumberID, "error", err)
	}
}

// jobLocation reports false for jobs booked without coordinates
func jobLocation(job *storage.Job) (matching.Location, bool) {
	if job.Latitude == 0 && job.Longitude == 0 {
		return matching.Location{}, false
	}
	return matching.Location{Lat: job.Latitude, Lng: job.Longitude}, true
}

func without(plumbers []*storage.Plumber, id string) []*storage.Plumber {
	out := make([]*storage.Plumber, 0, len(plumbers))
	for _, p := range plumbers {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// UpdateStatus applies a validated lifecycle transition
func (j *JobService) UpdateStatus(ctx context.Context, jobID string, update StatusUpdate) (*storage.Job, error) {
	to, ok := lifecycle.Parse(update.Status)
	if !ok {
		return nil, apperr.Validation("unknown status %q", update.Status)
	}
	if update.FinalPrice != nil {
		if to != lifecycle.Completed {
			return nil, apperr.Validation("final_price can only be set when completing a job")
		}
		if *update.FinalPrice < 0 {
			return nil, apperr.Validation("final_price must not be negative")
		}
	}

	unlock := j.locks.Lock("job:" + jobID)
	defer unlock()

	job, err := j.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "job "+jobID)
	}

	if to == lifecycle.Matched {
		plumber, err := j.match(ctx, job)
		if err != nil {
			return nil, err
		}
		if plumber == nil {
			return nil, apperr.Conflict("no plumber available for job %s", jobID)
		}
		return job, nil
	}

	if err := j.transition(ctx, job, to, update.FinalPrice); err != nil {
		return nil, err
	}
	return job, nil
}

// transition moves job to a post-match state and stamps the entry time.
// Callers hold the job lock.
func (j *JobService) transition(ctx context.Context, job *storage.Job, to lifecycle.Status, finalPrice *float64) error {
	from := lifecycle.Status(job.Status)
	if err := lifecycle.Validate(from, to); err != nil {
		return err
	}

	previous := *job
	now := j.now()
	var releaseID string

	switch to {
	case lifecycle.Accepted:
		job.AcceptedAt = &now
	case lifecycle.Started:
		job.StartedAt = &now
	case lifecycle.Declined:
		job.DeclinedAt = &now
		if job.PlumberID != nil {
			releaseID = *job.PlumberID
			job.DeclinedPlumberIDs = append(append([]string(nil), job.DeclinedPlumberIDs...), releaseID)
		}
		job.PlumberID = nil
	case lifecycle.Completed:
		job.CompletedAt = &now
		price := job.EstimatedPrice
		if finalPrice != nil {
			price = pricing.RoundCents(*finalPrice)
		}
		job.FinalPrice = &price
		if job.PlumberID != nil {
			releaseID = *job.PlumberID
		}
	}

	job.Status = string(to)
	job.UpdatedAt = now

	if err := j.storage.UpdateJob(ctx, job); err != nil {
		*job = previous
		return storageError(err, "job "+job.ID)
	}

	if releaseID != "" {
		j.release(ctx, releaseID)
	}

	j.logger.InfoContext(ctx, "Job status changed", "job_id", job.ID, "from", from, "to", to)

	event := kinesis.EventStatusChanged
	if to == lifecycle.Completed {
		event = kinesis.EventCompleted
	}
	j.streamer.PublishJobEvent(ctx, event, job)
	j.notifier.CustomerUpdated(ctx, job)
	return nil
}

// ProcessPendingJobs re-matches pending and declined jobs, most urgent first,
// and returns how many were matched.
func (j *JobService) ProcessPendingJobs(ctx context.Context) (int, error) {
	var jobs []*storage.Job
	for _, status := range []lifecycle.Status{lifecycle.Pending, lifecycle.Declined} {
		found, err := j.storage.GetJobsByStatus(ctx, string(status))
		if err != nil {
			return 0, storageError(err, "jobs")
		}
		jobs = append(jobs, found...)
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		ra, rb := urgency.Level(jobs[a].UrgencyLevel).Rank(), urgency.Level(jobs[b].UrgencyLevel).Rank()
		if ra != rb {
			return ra > rb
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})

	var matched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)

	for _, job := range jobs {
		g.Go(func() error {
			unlock := j.locks.Lock("job:" + job.ID)
			defer unlock()

			// Reload under the lock; the job may have moved on since the listing
			current, err := j.storage.GetJob(gctx, job.ID)
			if err != nil {
				j.logger.WarnContext(gctx, "Failed to reload pending job", "job_id", job.ID, "error", err)
				return nil
			}
			if !lifecycle.CanTransition(lifecycle.Status(current.Status), lifecycle.Matched) {
				return nil
			}

			plumber, err := j.match(gctx, current)
			if err != nil {
				j.logger.WarnContext(gctx, "Failed to match pending job", "job_id", job.ID, "error", err)
				return nil
			}
			if plumber != nil {
				matched.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(matched.Load()), err
	}

	if n := matched.Load(); n > 0 {
		j.logger.InfoContext(ctx, "Processed pending jobs", "pending", len(jobs), "matched", n)
	}
	return int(matched.Load()), nil
}

// GetJob retrieves a job by ID
func (j *JobService) GetJob(ctx context.Context, jobID string) (*storage.Job, error) {
	job, err := j.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, storageError(err, "job "+jobID)
	}
	return job, nil
}

// GetAllJobs returns all jobs, newest first
func (j *JobService) GetAllJobs(ctx context.Context) ([]*storage.Job, error) {
	jobs, err := j.storage.GetAllJobs(ctx)
	if err != nil {
		return nil, storageError(err, "jobs")
	}
	return newestFirst(jobs), nil
}

// GetJobsByStatus returns jobs in status, newest first
func (j *JobService) GetJobsByStatus(ctx context.Context, status string) ([]*storage.Job, error) {
	st, ok := lifecycle.Parse(status)
	if !ok {
		return nil, apperr.Validation("unknown status %q", status)
	}
	jobs, err := j.storage.GetJobsByStatus(ctx, string(st))
	if err != nil {
		return nil, storageError(err, "jobs")
	}
	return newestFirst(jobs), nil
}

// GetJobsByCustomer returns a customer's jobs, newest first
func (j *JobService) GetJobsByCustomer(ctx context.Context, customerID string) ([]*storage.Job, error) {
	jobs, err := j.storage.GetJobsByCustomer(ctx, customerID)
	if err != nil {
		return nil, storageError(err, "jobs")
	}
	return newestFirst(jobs), nil
}

// GetActiveJobCount returns the number of jobs a plumber is committed to
func (j *JobService) GetActiveJobCount(ctx context.Context) (int, error) {
	jobs, err := j.storage.GetAllJobs(ctx)
	if err != nil {
		return 0, storageError(err, "jobs")
	}

	count := 0
	for _, job := range jobs {
		if lifecycle.Status(job.Status).Active() {
			count++
		}
	}
	return count, nil
}

// JobTypeRevenue is the completed revenue for one job type
type JobTypeRevenue struct {
	Jobs    int     `json:"jobs"`
	Revenue float64 `json:"revenue"`
}

// Revenue summarizes completed jobs
type Revenue struct {
	CompletedJobs   int                       `json:"completed_jobs"`
	TotalRevenue    float64                   `json:"total_revenue"`
	PlatformFees    float64                   `json:"platform_fees"`
	PlumberPayouts  float64                   `json:"plumber_payouts"`
	AverageJobValue float64                   `json:"average_job_value"`
	ByJobType       map[string]JobTypeRevenue `json:"by_job_type"`
}

// GetRevenue totals completed jobs at their final price
func (j *JobService) GetRevenue(ctx context.Context) (*Revenue, error) {
	jobs, err := j.storage.GetJobsByStatus(ctx, string(lifecycle.Completed))
	if err != nil {
		return nil, storageError(err, "jobs")
	}

	var total, fees, payouts int64
	byType := make(map[string]int64)
	counts := make(map[string]int)

	for _, job := range jobs {
		amount := job.EstimatedPrice
		if job.FinalPrice != nil {
			amount = *job.FinalPrice
		}
		split := payments.Split(amount)
		cents := payments.ToCents(split.Amount)

		total += cents
		fees += payments.ToCents(split.PlatformFee)
		payouts += payments.ToCents(split.PlumberPayout)
		byType[job.JobType] += cents
		counts[job.JobType]++
	}

	revenue := &Revenue{
		CompletedJobs:  len(jobs),
		TotalRevenue:   payments.FromCents(total),
		PlatformFees:   payments.FromCents(fees),
		PlumberPayouts: payments.FromCents(payouts),
		ByJobType:      make(map[string]JobTypeRevenue, len(byType)),
	}
	if len(jobs) > 0 {
		revenue.AverageJobValue = pricing.RoundCents(revenue.TotalRevenue / float64(len(jobs)))
	}
	for jobType, cents := range byType {
		revenue.ByJobType[jobType] = JobTypeRevenue{Jobs: counts[jobType], Revenue: payments.FromCents(cents)}
	}
	return revenue, nil
}

func newestFirst(jobs []*storage.Job) []*storage.Job {
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs
}
