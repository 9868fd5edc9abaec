// Package pricing computes bounded, multi-factor price quotes for plumbing jobs.
package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"marketplace-service/internal/urgency"
)

// Config holds pricing parameters
type Config struct {
	BasePrices       map[string]float64 `yaml:"base_prices"`
	DefaultBasePrice float64            `yaml:"default_base_price"`

	UrgencyMultipliers map[urgency.Level]float64 `yaml:"urgency_multipliers"`

	// Time surcharges are exclusive: holiday, then weekend, then after-hours.
	HolidayMultiplier    float64  `yaml:"holiday_multiplier"`
	WeekendMultiplier    float64  `yaml:"weekend_multiplier"`
	AfterHoursMultiplier float64  `yaml:"after_hours_multiplier"`
	BusinessHoursStart   int      `yaml:"business_hours_start"`
	BusinessHoursEnd     int      `yaml:"business_hours_end"`
	Holidays             []string `yaml:"holidays"` // YYYY-MM-DD

	ZoneMultipliers map[string]float64 `yaml:"zone_multipliers"`

	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`
}

// DefaultConfig returns the published Houston price tables
func DefaultConfig() Config {
	return Config{
		BasePrices: map[string]float64{
			"leak":         79.99,
			"clog":         89.99,
			"water_heater": 99.99,
			"installation": 129.99,
			"maintenance":  69.99,
			"emergency":    199.99,
		},
		DefaultBasePrice: 89.99,
		UrgencyMultipliers: map[urgency.Level]float64{
			urgency.Critical: 2.0,
			urgency.High:     1.5,
			urgency.Medium:   1.2,
			urgency.Low:      1.0,
		},
		HolidayMultiplier:    1.5,
		WeekendMultiplier:    1.15,
		AfterHoursMultiplier: 1.2,
		BusinessHoursStart:   8,
		BusinessHoursEnd:     18,
		ZoneMultipliers: map[string]float64{
			"the_heights": 1.0,
			"heights":     1.0,
			"montrose":    1.05,
			"midtown":     1.1,
			"downtown":    1.15,
		},
		MinPrice: 69.99,
		MaxPrice: 299.99,
	}
}

// TimeFlags describe when the job is requested.
type TimeFlags struct {
	AfterHours bool `json:"after_hours"`
	Weekend    bool `json:"weekend"`
	Holiday    bool `json:"holiday"`
}

// Breakdown is an immutable price quote.
type Breakdown struct {
	BasePrice         float64 `json:"base_price"`
	UrgencyMultiplier float64 `json:"urgency_multiplier"`
	TimeMultiplier    float64 `json:"time_multiplier"`
	ZoneMultiplier    float64 `json:"zone_multiplier"`
	FinalPrice        float64 `json:"final_price"`
	Explanation       string  `json:"explanation"`
}

// Engine prices jobs from a fixed Config. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	zones    map[string]float64
	holidays map[string]bool
}

// NewEngine creates a pricing engine. Zone keys are normalized so tables may
// be written as "The Heights" or "the_heights".
func NewEngine(cfg Config) *Engine {
	zones := make(map[string]float64, len(cfg.ZoneMultipliers))
	for name, m := range cfg.ZoneMultipliers {
		zones[NormalizeZone(name)] = m
	}
	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, d := range cfg.Holidays {
		holidays[strings.TrimSpace(d)] = true
	}
	return &Engine{cfg: cfg, zones: zones, holidays: holidays}
}

// Quote prices a job. Multipliers apply in fixed order (urgency, time, zone) and
// only the final value is rounded, after clamping to [MinPrice, MaxPrice].
func (e *Engine) Quote(jobType string, level urgency.Level, neighborhood string, flags TimeFlags) Breakdown {
	base := e.BasePrice(jobType)
	urgencyMultiplier := e.UrgencyMultiplier(level)
	timeMultiplier := e.TimeMultiplier(flags)
	zoneMultiplier := e.ZoneMultiplier(neighborhood)

	raw := base * urgencyMultiplier * timeMultiplier * zoneMultiplier
	final := RoundCents(math.Min(math.Max(raw, e.cfg.MinPrice), e.cfg.MaxPrice))

	return Breakdown{
		BasePrice:         base,
		UrgencyMultiplier: urgencyMultiplier,
		TimeMultiplier:    timeMultiplier,
		ZoneMultiplier:    zoneMultiplier,
		FinalPrice:        final,
		Explanation: fmt.Sprintf("Base $%.2f × %.2fx (urgency) × %.2fx (time) × %.2fx (zone) = $%.2f",
			base, urgencyMultiplier, timeMultiplier, zoneMultiplier, final),
	}
}

// BasePrice returns the table price for jobType or the default for unknown types.
func (e *Engine) BasePrice(jobType string) float64 {
	if p, ok := e.cfg.BasePrices[strings.ToLower(strings.TrimSpace(jobType))]; ok {
		return p
	}
	return e.cfg.DefaultBasePrice
}

// UrgencyMultiplier returns the surge for level, 1.0 when unknown.
func (e *Engine) UrgencyMultiplier(level urgency.Level) float64 {
	if m, ok := e.cfg.UrgencyMultipliers[level]; ok {
		return m
	}
	return 1.0
}

// TimeMultiplier applies the single strongest time surcharge. Flags never stack.
func (e *Engine) TimeMultiplier(flags TimeFlags) float64 {
	switch {
	case flags.Holiday:
		return e.cfg.HolidayMultiplier
	case flags.Weekend:
		return e.cfg.WeekendMultiplier
	case flags.AfterHours:
		return e.cfg.AfterHoursMultiplier
	default:
		return 1.0
	}
}

// ZoneMultiplier looks up the normalized neighborhood, 1.0 when unknown.
func (e *Engine) ZoneMultiplier(neighborhood string) float64 {
	if m, ok := e.zones[NormalizeZone(neighborhood)]; ok {
		return m
	}
	return 1.0
}

// FlagsAt derives time flags for a request made at t (in t's location).
func (e *Engine) FlagsAt(t time.Time) TimeFlags {
	hour := t.Hour()
	return TimeFlags{
		AfterHours: hour < e.cfg.BusinessHoursStart || hour >= e.cfg.BusinessHoursEnd,
		Weekend:    t.Weekday() == time.Saturday || t.Weekday() == time.Sunday,
		Holiday:    e.holidays[t.Format("2006-01-02")],
	}
}

// Estimate is the urgency-only estimate shown before zone and time are known.
func (e *Engine) Estimate(jobType string, level urgency.Level) float64 {
	return RoundCents(e.BasePrice(jobType) * e.UrgencyMultiplier(level))
}

// NormalizeZone lowercases name and collapses whitespace runs into single underscores.
func NormalizeZone(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// RoundCents rounds a monetary value to two fractional digits.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
