package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/matching"
	"marketplace-service/internal/payments"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/service"
	"marketplace-service/internal/storage"
	"marketplace-service/internal/urgency"
)

var (
	houston        = time.FixedZone("CST", -6*60*60)
	tuesdayMorning = time.Date(2026, 3, 10, 10, 0, 0, 0, houston)
)

type testServer struct {
	router  *mux.Router
	handler *HTTPHandler
	store   *storage.MemoryStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStorage()

	jobs := service.NewJobService(
		store,
		urgency.NewClassifier(urgency.DefaultConfig()),
		pricing.NewEngine(pricing.DefaultConfig()),
		matching.New(matching.StrategyNearest, 10),
		logger,
	)
	jobs.SetClock(func() time.Time { return tuesdayMorning }, houston)
	jobs.SetServiceZones([]string{"The Heights", "Montrose"})

	gateway, err := payments.NewMercadoPagoGateway("", true, logger)
	require.NoError(t, err)

	handler := NewHTTPHandler(
		jobs,
		service.NewPlumberService(store, logger),
		service.NewCustomerService(store),
		service.NewPaymentService(store, jobs, gateway, "usd", logger),
		logger,
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return &testServer{router: router, handler: handler, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) registerPlumber(t *testing.T, name string, lat, lng float64) *storage.Plumber {
	t.Helper()
	w := s.do(t, http.MethodPost, "/plumbers", map[string]interface{}{
		"name":           name,
		"phone":          "+1832555" + name,
		"license_number": "M-" + name,
		"latitude":       lat,
		"longitude":      lng,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*storage.Plumber](t, w)
}

func heightsBooking(phone string) map[string]interface{} {
	return map[string]interface{}{
		"phone":        phone,
		"name":         "Maria Garcia",
		"address":      "1010 W 19th St",
		"job_type":     "installation",
		"description":  "Install a new faucet in the guest bathroom",
		"neighborhood": "The Heights",
		"latitude":     29.8030,
		"longitude":    -95.4010,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
}

func TestCreateJob_MatchesPlumber(t *testing.T) {
	s := newTestServer(t)
	plumber := s.registerPlumber(t, "ana", 29.8000, -95.4000)

	w := s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550100"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := decode[service.IntakeResult](t, w)
	assert.Equal(t, service.OutcomeCreated, result.Outcome)
	require.NotNil(t, result.Job)
	assert.Equal(t, "matched", result.Job.Status)
	assert.Equal(t, "LOW", result.Job.UrgencyLevel)
	assert.Equal(t, 129.99, result.Job.EstimatedPrice)
	require.NotNil(t, result.MatchedPlumber)
	assert.Equal(t, plumber.ID, result.MatchedPlumber.ID)

	w = s.do(t, http.MethodGet, "/jobs/"+result.Job.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, result.Job.ID, decode[storage.Job](t, w).ID)
}

func TestCreateJob_OutsideServiceArea(t *testing.T) {
	s := newTestServer(t)
	booking := heightsBooking("+17135550101")
	booking["neighborhood"] = "Katy"

	w := s.do(t, http.MethodPost, "/jobs", booking)

	assert.Equal(t, http.StatusAccepted, w.Code)
	result := decode[service.IntakeResult](t, w)
	assert.Equal(t, service.OutcomeComingSoon, result.Outcome)
	assert.Nil(t, result.Job)

	w = s.do(t, http.MethodGet, "/jobs", nil)
	assert.Empty(t, decode[[]storage.Job](t, w))
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"phone":`},
		{"missing fields", `{"phone":"+17135550102"}`},
		{"latitude out of range", `{"phone":"+17135550102","address":"1 Main","job_type":"leak","latitude":120,"longitude":-95.4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[ErrorBody](t, w)
			assert.Equal(t, "validation_error", body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestCreateJob_RateLimited(t *testing.T) {
	s := newTestServer(t)
	s.handler.SetIntakeLimiter(NewClientLimiter(0.001, 1))
	router := mux.NewRouter()
	s.handler.RegisterRoutes(router)
	s.router = router

	first := s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550103"))
	assert.Equal(t, http.StatusCreated, first.Code)

	second := s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550103"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[ErrorBody](t, second).Error.Code)

	// reads are never limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/jobs", nil).Code)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/jobs/nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorBody](t, w).Error.Code)
}

func TestUpdateJob_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	s.registerPlumber(t, "ana", 29.8000, -95.4000)
	created := decode[service.IntakeResult](t, s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550104")))
	path := "/jobs/" + created.Job.ID

	w := s.do(t, http.MethodPatch, path, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusConflict, w.Code, "matched cannot jump to completed")
	assert.Equal(t, "conflict", decode[ErrorBody](t, w).Error.Code)

	w = s.do(t, http.MethodPatch, path, map[string]string{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, status := range []string{"accepted", "started"} {
		w = s.do(t, http.MethodPatch, path, map[string]string{"status": status})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPatch, path, map[string]interface{}{"status": "completed", "final_price": 175.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job := decode[storage.Job](t, w)
	assert.Equal(t, "completed", job.Status)
	require.NotNil(t, job.FinalPrice)
	assert.Equal(t, 175.5, *job.FinalPrice)

	w = s.do(t, http.MethodGet, "/jobs/status/completed", nil)
	assert.Len(t, decode[[]storage.Job](t, w), 1)

	w = s.do(t, http.MethodGet, "/jobs/status/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/revenue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	revenue := decode[service.Revenue](t, w)
	assert.Equal(t, 1, revenue.CompletedJobs)
	assert.Equal(t, 175.5, revenue.TotalRevenue)
}

func TestProcessPendingJobs(t *testing.T) {
	s := newTestServer(t)
	created := decode[service.IntakeResult](t, s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550105")))
	assert.Equal(t, "pending", created.Job.Status)

	s.registerPlumber(t, "ben", 29.8010, -95.4020)
	w := s.do(t, http.MethodPost, "/jobs/process-pending", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, float64(1), body["matched"])

	job := decode[storage.Job](t, s.do(t, http.MethodGet, "/jobs/"+created.Job.ID, nil))
	assert.Equal(t, "matched", job.Status)
}

func TestQuote_DoesNotBook(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/quotes", map[string]string{
		"job_type":    "emergency",
		"description": "BURST PIPE flooding the kitchen!!!",
	})

	require.Equal(t, http.StatusOK, w.Code)
	quote := decode[QuoteResponse](t, w)
	assert.Equal(t, urgency.Critical, quote.Urgency.Level)
	assert.Equal(t, 299.99, quote.Price.FinalPrice)

	assert.Empty(t, decode[[]storage.Job](t, s.do(t, http.MethodGet, "/jobs", nil)))
}

func TestPlumberRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/plumbers", map[string]string{"name": "No License"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	plumber := s.registerPlumber(t, "cruz", 29.7500, -95.3900)
	assert.True(t, plumber.Available)
	assert.Equal(t, 5.0, plumber.Rating)

	w = s.do(t, http.MethodGet, "/plumbers/"+plumber.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/plumbers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, "/plumbers/"+plumber.ID, map[string]bool{"available": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[storage.Plumber](t, w).Available)

	w = s.do(t, http.MethodGet, "/plumbers", nil)
	assert.Len(t, decode[[]storage.Plumber](t, w), 1)

	w = s.do(t, http.MethodGet, "/plumbers/"+plumber.ID+"/jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]storage.Job](t, w))
}

func TestPlumberRoutes_BusyPlumberCannotGoAvailable(t *testing.T) {
	s := newTestServer(t)
	plumber := s.registerPlumber(t, "dee", 29.8000, -95.4000)
	s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550106"))

	w := s.do(t, http.MethodPatch, "/plumbers/"+plumber.ID, map[string]bool{"available": true})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCustomerRoutes(t *testing.T) {
	s := newTestServer(t)
	created := decode[service.IntakeResult](t, s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550107")))

	w := s.do(t, http.MethodGet, "/customers/+17135550107", nil)
	require.Equal(t, http.StatusOK, w.Code)
	customer := decode[storage.Customer](t, w)
	assert.Equal(t, created.Customer.ID, customer.ID)

	w = s.do(t, http.MethodGet, "/customers/"+customer.ID+"/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]storage.Job](t, w), 1)

	w = s.do(t, http.MethodGet, "/customers/+10000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentRoutes(t *testing.T) {
	s := newTestServer(t)
	s.registerPlumber(t, "eve", 29.8000, -95.4000)
	created := decode[service.IntakeResult](t, s.do(t, http.MethodPost, "/jobs", heightsBooking("+17135550108")))
	jobID := created.Job.ID

	w := s.do(t, http.MethodPost, "/payments/intent", PaymentIntentRequest{JobID: "missing", Amount: 100})
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, status := range []string{"accepted", "started"} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/jobs/"+jobID, map[string]string{"status": status}).Code)
	}

	w = s.do(t, http.MethodPost, "/payments/intent", PaymentIntentRequest{JobID: jobID, Amount: 150})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	intent := decode[map[string]interface{}](t, w)
	providerID, _ := intent["provider_payment_id"].(string)
	require.NotEmpty(t, providerID)
	assert.Equal(t, 150.0, intent["amount"])

	w = s.do(t, http.MethodPost, "/payments/confirm", ConfirmPaymentRequest{JobID: jobID, PaymentIntentID: providerID, Amount: 150})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirmed := decode[map[string]interface{}](t, w)
	assert.Equal(t, true, confirmed["success"])
	assert.Equal(t, 30.0, confirmed["platform_fee"])
	assert.Equal(t, 120.0, confirmed["plumber_payout"])

	w = s.do(t, http.MethodPost, "/payments/confirm", ConfirmPaymentRequest{JobID: jobID, PaymentIntentID: providerID, Amount: 150})
	assert.Equal(t, http.StatusConflict, w.Code, "a job is paid once")

	w = s.do(t, http.MethodGet, "/jobs/"+jobID+"/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]storage.Payment](t, w), 1)
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := CORSMiddleware(next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/jobs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestClientLimiter(t *testing.T) {
	limiter := NewClientLimiter(0.001, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "clients are limited independently")

	var disabled *ClientLimiter
	assert.True(t, disabled.Allow("anyone"))
	assert.True(t, NewClientLimiter(0, 1).Allow("anyone"))
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	limiter := NewClientLimiter(1, 2)
	clock := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		limiter.Allow(fmt.Sprintf("198.51.100.%d", i))
	}
	assert.Equal(t, 100, limiter.size())

	clock = clock.Add(time.Minute)
	assert.True(t, limiter.Allow("192.0.2.1"))
	assert.Equal(t, 1, limiter.size(), "idle limiters are dropped")
}

func TestClientLimiter_SweepKeepsActiveClientsLimited(t *testing.T) {
	limiter := NewClientLimiter(0.001, 1)
	clock := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	assert.True(t, limiter.Allow("10.0.0.1"))
	clock = clock.Add(10 * time.Minute)
	assert.False(t, limiter.Allow("10.0.0.1"), "bucket has not refilled, entry must survive")
}

func TestClientAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5123"
	assert.Equal(t, "192.0.2.10", clientAddress(req, false))
	assert.Equal(t, "192.0.2.10", clientAddress(req, true))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.4")
	assert.Equal(t, "192.0.2.10", clientAddress(req, false), "header ignored without a trusted proxy")
	assert.Equal(t, "198.51.100.4", clientAddress(req, true), "last hop is the one the proxy appended")
}

func TestCreateJob_RotatingForwardedForDoesNotBypassLimit(t *testing.T) {
	s := newTestServer(t)
	s.handler.SetIntakeLimiter(NewClientLimiter(0.001, 1))
	router := mux.NewRouter()
	s.handler.RegisterRoutes(router)

	post := func(forwardedFor string) int {
		payload, err := json.Marshal(heightsBooking("+17135550109"))
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
		req.RemoteAddr = "192.0.2.50:40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, post("203.0.113.1"))
	for i := 2; i < 10; i++ {
		assert.Equal(t, http.StatusTooManyRequests, post(fmt.Sprintf("203.0.113.%d", i)))
	}
}

func TestDemoRoutes(t *testing.T) {
	s := newTestServer(t)
	demo := NewDemoHandler(service.NewDemoLeadGenerator(s.handler.jobs, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil))))
	demo.RegisterRoutes(s.router)

	w := s.do(t, http.MethodGet, "/demo/status", nil)
	assert.Equal(t, false, decode[map[string]interface{}](t, w)["running"])

	w = s.do(t, http.MethodPost, "/demo/start", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	t.Cleanup(func() { s.do(t, http.MethodPost, "/demo/stop", nil) })

	w = s.do(t, http.MethodGet, "/demo/status", nil)
	assert.Equal(t, true, decode[map[string]interface{}](t, w)["running"])

	w = s.do(t, http.MethodPost, "/demo/stop", nil)
	assert.Equal(t, "stopped", decode[map[string]interface{}](t, w)["status"])
}
