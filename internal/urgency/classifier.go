// Package urgency scores free-text job descriptions into an urgency tier.
package urgency

import (
	"sort"
	"strings"
	"unicode/utf16"
)

// variationSelector16 requests emoji presentation; it carries no meaning on its own.
const variationSelector16 = "\uFE0F"

// Result is the outcome of classifying one job request.
type Result struct {
	Level                 Level   `json:"urgency_level"`
	Score                 int     `json:"score"`
	Confidence            float64 `json:"confidence"`
	Reasoning             string  `json:"reasoning"`
	EstimatedResponseTime string  `json:"estimated_response_time"`
	ResponseMinutes       int     `json:"response_minutes"`
}

// Classifier is safe for concurrent use; it holds only read-only tables.
type Classifier struct {
	rules      []KeywordRule
	glyphs     []string
	tiers      []TierRule
	modifiers  map[string]int
	capsRatio  float64
	capsBonus  int
	glyphBonus int
}

// NewClassifier builds a classifier from cfg. Keyword rules are checked from the
// highest tier down and tiers from the highest minimum score down, whatever
// order cfg lists them in.
func NewClassifier(cfg Config) *Classifier {
	defaults := DefaultConfig()
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = defaults.Tiers
	}

	rules := make([]KeywordRule, 0, len(cfg.KeywordRules))
	for _, r := range cfg.KeywordRules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		rules = append(rules, KeywordRule{Level: r.Level, Points: r.Points, Keywords: kws})
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Level.Rank() > rules[j].Level.Rank()
	})

	tiers := append([]TierRule(nil), cfg.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinScore > tiers[j].MinScore
	})

	glyphs := make([]string, 0, len(cfg.PanicGlyphs))
	for _, g := range cfg.PanicGlyphs {
		if g = strings.ReplaceAll(g, variationSelector16, ""); g != "" {
			glyphs = append(glyphs, g)
		}
	}

	modifiers := make(map[string]int, len(cfg.JobTypeModifiers))
	for k, v := range cfg.JobTypeModifiers {
		modifiers[strings.ToLower(strings.TrimSpace(k))] = v
	}

	return &Classifier{
		rules:      rules,
		glyphs:     glyphs,
		tiers:      tiers,
		modifiers:  modifiers,
		capsRatio:  cfg.CapsRatioThreshold,
		capsBonus:  cfg.CapsBonus,
		glyphBonus: cfg.GlyphBonus,
	}
}

// Classify scores description and maps the score onto a tier. It never fails:
// text that matches nothing lands in the lowest tier.
func (c *Classifier) Classify(description, jobType string) Result {
	score := 0

	if CapsRatio(description) > c.capsRatio {
		score += c.capsBonus
	}
	if c.hasPanicGlyph(description) {
		score += c.glyphBonus
	}

	score += c.keywordPoints(strings.ToLower(description))
	score += c.modifiers[strings.ToLower(strings.TrimSpace(jobType))]

	tier := c.TierFor(score)
	return Result{
		Level:                 tier.Level,
		Score:                 score,
		Confidence:            tier.Confidence,
		Reasoning:             tier.Reasoning,
		EstimatedResponseTime: tier.ResponseSLA,
		ResponseMinutes:       tier.ResponseMinutes,
	}
}

// TierFor returns the first tier whose inclusive minimum the score reaches,
// falling back to the lowest tier.
func (c *Classifier) TierFor(score int) TierRule {
	for _, t := range c.tiers {
		if score >= t.MinScore {
			return t
		}
	}
	return c.tiers[len(c.tiers)-1]
}

// Tier looks up the fixed table row for level.
func (c *Classifier) Tier(level Level) (TierRule, bool) {
	for _, t := range c.tiers {
		if t.Level == level {
			return t, true
		}
	}
	return TierRule{}, false
}

// keywordPoints applies at most one keyword rule: the highest tier with a hit.
func (c *Classifier) keywordPoints(lower string) int {
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Points
			}
		}
	}
	return 0
}

func (c *Classifier) hasPanicGlyph(text string) bool {
	for _, g := range c.glyphs {
		if strings.Contains(text, g) {
			return true
		}
	}
	return false
}

// CapsRatio is the share of ASCII capitals A-Z in text, measured against its
// length in UTF-16 code units, so an emoji outside the BMP counts twice.
// Empty text has a ratio of 0.
func CapsRatio(text string) float64 {
	total, upper := 0, 0
	for _, r := range text {
		total += utf16.RuneLen(r)
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}
