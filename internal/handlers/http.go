package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketplace-service/internal/pricing"
	"marketplace-service/internal/service"
	"marketplace-service/internal/urgency"
)

// HTTPHandler handles HTTP requests for the marketplace
type HTTPHandler struct {
	jobs      *service.JobService
	plumbers  *service.PlumberService
	customers *service.CustomerService
	payments  *service.PaymentService
	limiter   *ClientLimiter
	logger    *slog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(jobs *service.JobService, plumbers *service.PlumberService, customers *service.CustomerService, payments *service.PaymentService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		jobs:      jobs,
		plumbers:  plumbers,
		customers: customers,
		payments:  payments,
		logger:    logger,
	}
}

// SetIntakeLimiter rate-limits job intake and quotes per client
func (h *HTTPHandler) SetIntakeLimiter(limiter *ClientLimiter) {
	h.limiter = limiter
}

// RegisterRoutes sets up HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	router.HandleFunc("/jobs", h.GetAllJobs).Methods("GET")
	router.HandleFunc("/jobs", h.limiter.Wrap(h.CreateJob)).Methods("POST")
	router.HandleFunc("/jobs/process-pending", h.ProcessPendingJobs).Methods("POST")
	router.HandleFunc("/jobs/status/{status}", h.GetJobsByStatus).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.UpdateJob).Methods("PATCH")
	router.HandleFunc("/jobs/{id}/payments", h.GetJobPayments).Methods("GET")
	router.HandleFunc("/revenue", h.GetRevenue).Methods("GET")
	router.HandleFunc("/quotes", h.limiter.Wrap(h.Quote)).Methods("POST")

	router.HandleFunc("/plumbers", h.ListPlumbers).Methods("GET")
	router.HandleFunc("/plumbers", h.RegisterPlumber).Methods("POST")
	router.HandleFunc("/plumbers/{id}", h.GetPlumber).Methods("GET")
	router.HandleFunc("/plumbers/{id}", h.UpdatePlumber).Methods("PATCH")
	router.HandleFunc("/plumbers/{id}/jobs", h.GetPlumberJobs).Methods("GET")

	router.HandleFunc("/customers/{phone}", h.GetCustomer).Methods("GET")
	router.HandleFunc("/customers/{id}/jobs", h.GetCustomerJobs).Methods("GET")

	router.HandleFunc("/payments/intent", h.CreatePaymentIntent).Methods("POST")
	router.HandleFunc("/payments/confirm", h.ConfirmPayment).Methods("POST")
}

// Health returns service health status
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateJob books a job. Out-of-area requests get 202 with a coming_soon outcome.
func (h *HTTPHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == service.OutcomeComingSoon {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// GetAllJobs returns all jobs
func (h *HTTPHandler) GetAllJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.GetAllJobs(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob retrieves a specific job
func (h *HTTPHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// UpdateJob applies a status transition
func (h *HTTPHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	var update service.StatusUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.UpdateStatus(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetJobsByStatus returns jobs with specific status
func (h *HTTPHandler) GetJobsByStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.GetJobsByStatus(r.Context(), mux.Vars(r)["status"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ProcessPendingJobs re-matches pending and declined jobs now
func (h *HTTPHandler) ProcessPendingJobs(w http.ResponseWriter, r *http.Request) {
	matched, err := h.jobs.ProcessPendingJobs(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Pending jobs processed",
		"matched": matched,
	})
}

// GetRevenue returns revenue statistics
func (h *HTTPHandler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	revenue, err := h.jobs.GetRevenue(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, revenue)
}

// QuoteResponse is a triage and price preview
type QuoteResponse struct {
	Urgency urgency.Result    `json:"urgency"`
	Price   pricing.Breakdown `json:"price"`
}

// Quote classifies and prices a request without booking it
func (h *HTTPHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	triage, price := h.jobs.Quote(req)
	writeJSON(w, http.StatusOK, QuoteResponse{Urgency: triage, Price: price})
}

// ListPlumbers returns plumbers, best rated first
func (h *HTTPHandler) ListPlumbers(w http.ResponseWriter, r *http.Request) {
	plumbers, err := h.plumbers.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plumbers)
}

// RegisterPlumber adds a plumber
func (h *HTTPHandler) RegisterPlumber(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterPlumberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	plumber, err := h.plumbers.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plumber)
}

// GetPlumber retrieves a plumber
func (h *HTTPHandler) GetPlumber(w http.ResponseWriter, r *http.Request) {
	plumber, err := h.plumbers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plumber)
}

// UpdatePlumber changes availability or location
func (h *HTTPHandler) UpdatePlumber(w http.ResponseWriter, r *http.Request) {
	var update service.PlumberUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	plumber, err := h.plumbers.UpdateAvailability(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plumber)
}

// GetPlumberJobs returns a plumber's jobs
func (h *HTTPHandler) GetPlumberJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.plumbers.GetJobs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetCustomer looks a customer up by phone
func (h *HTTPHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.FindByPhone(r.Context(), mux.Vars(r)["phone"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

// GetCustomerJobs returns a customer's jobs
func (h *HTTPHandler) GetCustomerJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.customers.GetJobs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// PaymentIntentRequest asks for a provider payment
type PaymentIntentRequest struct {
	JobID  string  `json:"job_id"`
	Amount float64 `json:"amount"`
}

// CreatePaymentIntent opens a payment with the provider
func (h *HTTPHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req PaymentIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	payment, err := h.payments.CreateIntent(r.Context(), req.JobID, req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_id":          payment.ID,
		"provider_payment_id": payment.ProviderPaymentID,
		"client_secret":       payment.ClientSecret,
		"amount":              payment.Amount,
		"currency":            payment.Currency,
	})
}

// ConfirmPaymentRequest settles a job
type ConfirmPaymentRequest struct {
	JobID           string  `json:"job_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Amount          float64 `json:"amount"`
}

// ConfirmPayment records a successful payment and the payout split
func (h *HTTPHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	confirmation, err := h.payments.Confirm(r.Context(), req.JobID, req.PaymentIntentID, req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"payment_id":     confirmation.Payment.ID,
		"amount":         confirmation.Payment.Amount,
		"platform_fee":   confirmation.Payment.PlatformFee,
		"plumber_payout": confirmation.Payment.PlumberPayout,
		"job":            confirmation.Job,
	})
}

// GetJobPayments lists payments recorded for a job
func (h *HTTPHandler) GetJobPayments(w http.ResponseWriter, r *http.Request) {
	found, err := h.payments.GetPayments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}
