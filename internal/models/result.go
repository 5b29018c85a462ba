package models

// CategoryScore is the normalized score of a single category.
type CategoryScore struct {
	Category Category `json:"category"`
	// Score is in [0, 100].
	Score float64 `json:"score"`
	// Questions is the number of questions that contributed to Score.
	Questions int `json:"questions"`
	// Scored is false when no question touched the category.
	Scored bool `json:"scored"`
}

// ScoreVector holds a score per category in sorted category order. Scores are independent and need not sum to 100.
type ScoreVector struct {
	Categories []CategoryScore `json:"categories"`
	// ByKind holds the same computation restricted to a single question kind.
	ByKind map[QuestionKind][]CategoryScore `json:"byKind,omitempty"`
}

// Get returns the score of category c.
func (v ScoreVector) Get(c Category) (CategoryScore, bool) {
	return FindScore(v.Categories, c)
}

// FindScore looks up c in scores.
func FindScore(scores []CategoryScore, c Category) (CategoryScore, bool) {
	for _, s := range scores {
		if s.Category == c {
			return s, true
		}
	}
	return CategoryScore{}, false
}

type WarningKind string

const (
	WarningTooFast       WarningKind = "too_fast"
	WarningTooSlow       WarningKind = "too_slow"
	WarningLowVariance   WarningKind = "low_variance"
	WarningContradiction WarningKind = "contradiction"
)

type Warning struct {
	Kind     WarningKind `json:"kind"`
	Note     string      `json:"note"`
	Category Category    `json:"category,omitempty"`
	Severity float64     `json:"severity"`
}

// ValidityReport estimates how trustworthy a set of responses is.
type ValidityReport struct {
	ConfidenceScore float64   `json:"confidenceScore"`
	Warnings        []Warning `json:"warnings"`
	IsReliable      bool      `json:"isReliable"`
}

// HasWarning reports whether the report contains a warning of kind k.
func (r ValidityReport) HasWarning(k WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == k {
			return true
		}
	}
	return false
}

type ClassificationResult struct {
	PrimaryCategory   Category `json:"primaryCategory"`
	SecondaryCategory Category `json:"secondaryCategory,omitempty"`
	// BlindspotIndex in [0, 100] measures the gap between self-description and situational choices.
	BlindspotIndex float64        `json:"blindspotIndex"`
	ScoreVector    ScoreVector    `json:"scoreVector"`
	Validity       ValidityReport `json:"validity"`
	LowConfidence  bool           `json:"lowConfidence"`
}
