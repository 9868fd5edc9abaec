package urgency

import "strings"

// Level is an urgency tier. Tiers are strictly ordered: Critical > High > Medium > Low.
type Level string

const (
	Critical Level = "CRITICAL"
	High     Level = "HIGH"
	Medium   Level = "MEDIUM"
	Low      Level = "LOW"
)

var levelRank = map[Level]int{
	Low:      0,
	Medium:   1,
	High:     2,
	Critical: 3,
}

// Rank orders levels; unknown levels rank below Low.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the four tiers.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// ParseLevel parses a tier name case-insensitively. Unknown names yield Low and false.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return Low, false
	}
	return l, true
}

// KeywordRule awards Points when any keyword appears in the description.
type KeywordRule struct {
	Level    Level    `yaml:"level"`
	Points   int      `yaml:"points"`
	Keywords []string `yaml:"keywords"`
}

// TierRule maps an inclusive minimum score to a tier and its fixed response promise.
type TierRule struct {
	Level           Level   `yaml:"level"`
	MinScore        int     `yaml:"min_score"`
	Confidence      float64 `yaml:"confidence"`
	ResponseSLA     string  `yaml:"response_sla"`
	ResponseMinutes int     `yaml:"response_minutes"`
	Reasoning       string  `yaml:"reasoning"`
}

// Config holds the classifier tables.
type Config struct {
	CapsRatioThreshold float64        `yaml:"caps_ratio_threshold"`
	CapsBonus          int            `yaml:"caps_bonus"`
	PanicGlyphs        []string       `yaml:"panic_glyphs"`
	GlyphBonus         int            `yaml:"glyph_bonus"`
	KeywordRules       []KeywordRule  `yaml:"keyword_rules"`
	JobTypeModifiers   map[string]int `yaml:"job_type_modifiers"`
	Tiers              []TierRule     `yaml:"tiers"`
}

// DefaultConfig returns the published classifier tables.
func DefaultConfig() Config {
	return Config{
		CapsRatioThreshold: 0.3,
		CapsBonus:          3,
		PanicGlyphs:        []string{"🚨", "⚠️", "😱", "💧", "😰", "🚩", "🆘"},
		GlyphBonus:         2,
		KeywordRules: []KeywordRule{
			{
				Level:  Critical,
				Points: 5,
				Keywords: []string{
					"burst pipe", "burst", "flooding", "flood", "no water", "sewage", "sewer backup",
					"sewage leak", "main line", "main break", "emergency", "gas leak", "disaster",
				},
			},
			{
				Level:  High,
				Points: 3,
				Keywords: []string{
					"leak", "leaking", "dripping water", "water heater leak", "major clog", "toilet backup",
					"backed up", "overflowing", "won't stop", "continuous leak", "serious",
				},
			},
			{
				Level:  Medium,
				Points: 2,
				Keywords: []string{
					"slow drain", "clogged", "clog", "low pressure", "dripping", "minor leak",
					"water heater issue", "repair needed", "not working",
				},
			},
			{
				Level:  Low,
				Points: 1,
				Keywords: []string{
					"faucet", "install", "quote", "inspection", "maintenance", "estimate", "question",
					"advice", "slowly", "slow", "minor",
				},
			},
		},
		JobTypeModifiers: map[string]int{
			"emergency":   3,
			"maintenance": -1,
		},
		Tiers: []TierRule{
			{Level: Critical, MinScore: 8, Confidence: 0.96, ResponseSLA: "<15 minutes", ResponseMinutes: 15,
				Reasoning: "Burst pipe, flooding, or immediate water damage detected"},
			{Level: High, MinScore: 5, Confidence: 0.93, ResponseSLA: "<30 minutes", ResponseMinutes: 30,
				Reasoning: "Active leak or major blockage requiring urgent response"},
			{Level: Medium, MinScore: 2, Confidence: 0.88, ResponseSLA: "<2 hours", ResponseMinutes: 120,
				Reasoning: "Non-critical plumbing issue needing repair within hours"},
			{Level: Low, MinScore: 0, Confidence: 0.84, ResponseSLA: "24 hours", ResponseMinutes: 1440,
				Reasoning: "Maintenance, quote, or non-urgent service request"},
		},
	}
}
