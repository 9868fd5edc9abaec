package urgency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_BurstPipeEmergency(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	result := c.Classify("BURST PIPE FLOODING!!!", "emergency")

	assert.Equal(t, Critical, result.Level)
	assert.Equal(t, 11, result.Score) // caps 3 + critical keyword 5 + emergency 3
	assert.Equal(t, 0.96, result.Confidence)
	assert.Equal(t, "<15 minutes", result.EstimatedResponseTime)
	assert.Equal(t, 15, result.ResponseMinutes)
	assert.Equal(t, "Burst pipe, flooding, or immediate water damage detected", result.Reasoning)
}

func TestClassifier_TierBoundaries(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		score int
		want  Level
	}{
		{9, Critical},
		{8, Critical},
		{7, High},
		{5, High},
		{4, Medium},
		{2, Medium},
		{1, Low},
		{0, Low},
		{-1, Low},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.TierFor(tt.score).Level, "score %d", tt.score)
	}
}

func TestClassifier_TierTableIsFixed(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	expected := map[Level]struct {
		confidence float64
		sla        string
	}{
		Critical: {0.96, "<15 minutes"},
		High:     {0.93, "<30 minutes"},
		Medium:   {0.88, "<2 hours"},
		Low:      {0.84, "24 hours"},
	}

	for level, want := range expected {
		tier, ok := c.Tier(level)
		require.True(t, ok, "missing tier %s", level)
		assert.Equal(t, want.confidence, tier.Confidence, "confidence for %s", level)
		assert.Equal(t, want.sla, tier.ResponseSLA, "sla for %s", level)
	}
}

func TestClassifier_KeywordTiersAreExclusive(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		name        string
		description string
		wantScore   int
		wantLevel   Level
	}{
		{"critical beats low", "burst pipe under the kitchen faucet", 5, High},
		{"high only", "toilet backup in the hall bath", 3, Medium},
		{"medium beats low", "slow drain in the tub", 2, Medium},
		{"low only", "need a quote for a new faucet", 1, Low},
		{"nothing", "my garden hose is green", 0, Low},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.description, "")
			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantLevel, result.Level)
		})
	}
}

func TestClassifier_RuleOrderInConfigDoesNotMatter(t *testing.T) {
	cfg := DefaultConfig()
	for i, j := 0, len(cfg.KeywordRules)-1; i < j; i, j = i+1, j-1 {
		cfg.KeywordRules[i], cfg.KeywordRules[j] = cfg.KeywordRules[j], cfg.KeywordRules[i]
	}
	c := NewClassifier(cfg)

	result := c.Classify("sewage coming up near the faucet", "")

	assert.Equal(t, 5, result.Score)
}

func TestClassifier_JobTypeModifiers(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	assert.Equal(t, 3, c.Classify("", "emergency").Score)
	assert.Equal(t, Medium, c.Classify("", "emergency").Level)
	assert.Equal(t, -1, c.Classify("", "maintenance").Score)
	assert.Equal(t, Low, c.Classify("", "maintenance").Level)
	assert.Equal(t, 0, c.Classify("", "leak").Score)
}

func TestClassifier_EmptyDescription(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	result := c.Classify("", "")

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, Low, result.Level)
	assert.Equal(t, 0.84, result.Confidence)
	assert.Equal(t, "24 hours", result.EstimatedResponseTime)
}

func TestClassifier_CapsHeuristic(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	assert.Equal(t, 3, c.Classify("HELP my sink", "").Score)
	assert.Equal(t, 0, c.Classify("help my sink", "").Score)
}

func TestClassifier_PanicGlyphs(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		name        string
		description string
		want        int
	}{
		{"siren", "water everywhere 🚨", 2},
		{"warning with variation selector", "pipe noise ⚠️", 2},
		{"warning without variation selector", "pipe noise ⚠", 2},
		{"water drop", "💧💧💧", 2},
		{"zwj sequence containing siren", "🧑‍🚒🚨", 2},
		{"heart with variation selector", "my sink ❤️", 0},
		{"family zwj sequence", "👨‍👩‍👧 home", 0},
		{"plain text", "sink", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.description, "").Score)
		})
	}
}

func TestCapsRatio(t *testing.T) {
	assert.Equal(t, 0.0, CapsRatio(""))
	assert.Equal(t, 1.0, CapsRatio("ABC"))
	assert.Equal(t, 0.5, CapsRatio("Ab"))
	assert.Equal(t, 0.0, CapsRatio("ÀÉÎ"))
	assert.Equal(t, 0.0, CapsRatio("É🚨"))
	assert.InDelta(t, 1.0/3, CapsRatio("A😀"), 1e-9)
}

func TestClassify_CapsMeasuredInUTF16Units(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	// 2 capitals over 7 units: each emoji is a surrogate pair
	assert.Equal(t, 0, c.Classify("HI 😀😀", "").Score)
	assert.Equal(t, 3, c.Classify("HI 😀", "").Score)
	assert.Equal(t, 0, c.Classify("ÉÉÉ ÀÀ", "").Score)
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel(" critical ")
	assert.True(t, ok)
	assert.Equal(t, Critical, level)

	level, ok = ParseLevel("urgent")
	assert.False(t, ok)
	assert.Equal(t, Low, level)

	assert.True(t, Critical.Rank() > High.Rank())
	assert.True(t, High.Rank() > Medium.Rank())
	assert.True(t, Medium.Rank() > Low.Rank())
}

func TestClassifier_ConcurrentUse(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	var wg sync.WaitGroup
	results := make([]Result, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Classify("Gas leak by the water heater 😱", "emergency")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, Critical, results[0].Level)
}
