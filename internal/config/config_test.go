package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/urgency"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORAGE_TYPE", "MATCH_RADIUS_KM", "SERVICE_ZONES", "PROCESSOR_INTERVAL", "LOG_LEVEL", "PAYMENT_GATEWAY_MOCK", "TRUST_PROXY_HEADERS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 10.0, cfg.MatchRadiusKm)
	assert.Empty(t, cfg.ServiceZones)
	assert.Equal(t, 5*time.Second, cfg.ProcessorInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.PaymentGatewayMock)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Equal(t, "marketplace-jobs", cfg.DynamoDBTables.Jobs)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_TYPE", "Postgres")
	t.Setenv("MATCH_RADIUS_KM", "25.5")
	t.Setenv("SERVICE_ZONES", "The Heights, Montrose ,,Downtown")
	t.Setenv("PROCESSOR_INTERVAL", "250ms")
	t.Setenv("PROCESSOR_CONCURRENCY", "8")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("PAYMENT_GATEWAY_MOCK", "false")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.StorageType)
	assert.Equal(t, 25.5, cfg.MatchRadiusKm)
	assert.Equal(t, []string{"The Heights", "Montrose", "Downtown"}, cfg.ServiceZones)
	assert.Equal(t, 250*time.Millisecond, cfg.ProcessorInterval)
	assert.Equal(t, 8, cfg.ProcessorConcurrency)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.DemoMode)
	assert.False(t, cfg.PaymentGatewayMock)
	assert.True(t, cfg.TrustProxyHeaders)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PROCESSOR_INTERVAL", "soon")
	t.Setenv("MATCH_RADIUS_KM", "far")
	t.Setenv("INTAKE_BURST", "lots")
	t.Setenv("DEMO_MODE", "maybe")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.ProcessorInterval)
	assert.Equal(t, 10.0, cfg.MatchRadiusKm)
	assert.Equal(t, 5, cfg.IntakeBurst)
	assert.False(t, cfg.DemoMode)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadTables_EmptyPathReturnsDefaults(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTables(), tables)
}

func TestLoadTables_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pricing:
  base_prices:
    leak: 84.99
    gas_line: 149.99
  zone_multipliers:
    river_oaks: 1.2
  holidays:
    - "2026-12-25"
urgency:
  job_type_modifiers:
    commercial: 1
`), 0o644))

	tables, err := LoadTables(path)
	require.NoError(t, err)

	assert.Equal(t, 84.99, tables.Pricing.BasePrices["leak"])
	assert.Equal(t, 149.99, tables.Pricing.BasePrices["gas_line"])
	assert.Equal(t, 69.99, tables.Pricing.BasePrices["maintenance"], "unlisted keys keep defaults")
	assert.Equal(t, 1.2, tables.Pricing.ZoneMultipliers["river_oaks"])
	assert.Equal(t, []string{"2026-12-25"}, tables.Pricing.Holidays)
	assert.Equal(t, 299.99, tables.Pricing.MaxPrice)
	assert.Equal(t, 1, tables.Urgency.JobTypeModifiers["commercial"])
	assert.Equal(t, 3, tables.Urgency.JobTypeModifiers["emergency"])
	assert.Len(t, tables.Urgency.Tiers, 4)
}

func TestLoadTables_Errors(t *testing.T) {
	_, err := LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pricing: [not, a, map"), 0o644))
	_, err = LoadTables(bad)
	assert.Error(t, err)

	inverted := filepath.Join(dir, "inverted.yaml")
	require.NoError(t, os.WriteFile(inverted, []byte("pricing:\n  min_price: 500\n"), 0o644))
	_, err = LoadTables(inverted)
	assert.ErrorContains(t, err, "min_price")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("pricing:\n  urgency_multipliers:\n    PANIC: 3\n"), 0o644))
	_, err = LoadTables(unknown)
	assert.ErrorContains(t, err, "PANIC")
}

func TestLoadTables_RepoTablesFile(t *testing.T) {
	tables, err := LoadTables(filepath.Join("..", "..", "configs", "tables.yaml"))
	require.NoError(t, err)

	classifier := urgency.NewClassifier(tables.Urgency)
	result := classifier.Classify("BURST PIPE FLOODING!!!", "emergency")
	assert.Equal(t, urgency.Critical, result.Level)
	assert.Equal(t, 0.96, result.Confidence)
}
