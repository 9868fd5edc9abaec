package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
)

var ErrMissingAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// Intent is a created provider payment the client app completes
type Intent struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	ClientSecret      string `json:"client_secret"`
	Status            string `json:"status"`
}

// Gateway creates payment intents with the payment provider
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
}

// MercadoPagoGateway implements Gateway with the Mercado Pago SDK. In mock
// mode no network calls are made and every intent is approved.
type MercadoPagoGateway struct {
	client   payment.Client
	mockMode bool
	logger   *slog.Logger
}

// NewMercadoPagoGateway builds a gateway. mock skips the access token check.
func NewMercadoPagoGateway(accessToken string, mock bool, logger *slog.Logger) (*MercadoPagoGateway, error) {
	if mock {
		logger.Info("Payment gateway running in mock mode")
		return &MercadoPagoGateway{mockMode: true, logger: logger}, nil
	}

	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create mercado pago config: %w", err)
	}
	logger.Info("Mercado Pago client initialized")

	return &MercadoPagoGateway{client: payment.NewClient(cfg), logger: logger}, nil
}

func (g *MercadoPagoGateway) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error) {
	if amountCents <= 0 {
		return Intent{}, fmt.Errorf("amount must be positive, got %d cents", amountCents)
	}

	if g != nil && g.mockMode {
		id := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		g.logger.Debug("Mock payment intent created", "provider_payment_id", id, "amount_cents", amountCents)
		return Intent{ProviderPaymentID: id, ClientSecret: "mock_secret_" + id, Status: "approved"}, nil
	}

	if g == nil || g.client == nil {
		return Intent{}, ErrGatewayNotConfigured
	}

	req, err := buildRequest(amountCents, metadata)
	if err != nil {
		return Intent{}, err
	}

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("mercado pago create payment: %w", err)
	}

	id := fmt.Sprintf("%d", resp.ID)
	g.logger.Info("Payment intent created",
		"provider_payment_id", id,
		"provider_status", resp.Status,
		"currency", currency,
	)

	// Mercado Pago has no client secret; the app completes the payment by id.
	return Intent{ProviderPaymentID: id, ClientSecret: id, Status: resp.Status}, nil
}

// buildRequest goes through JSON so the request tracks the provider's wire
// field names rather than SDK struct layout.
func buildRequest(amountCents int64, metadata map[string]string) (payment.Request, error) {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	payload := map[string]any{
		"transaction_amount": FromCents(amountCents),
		"description":        "Plumbing job " + metadata["job_id"],
		"external_reference": metadata["job_id"],
		"metadata":           meta,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return payment.Request{}, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	var req payment.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return payment.Request{}, fmt.Errorf("failed to build payment request: %w", err)
	}
	return req, nil
}
