package models

import (
	"time"
)

type QuestionKind string

const (
	QuestionKindStatement QuestionKind = "statement"
	QuestionKindScenario  QuestionKind = "scenario"
)

const (
	// LikertMin and LikertMax bound the raw value of a statement response.
	LikertMin = 1
	LikertMax = 5
)

// ScenarioOption is one choice of a scenario question. Selecting it credits Weight to every category in Categories.
type ScenarioOption struct {
	ID         string     `json:"id" yaml:"id"`
	Text       string     `json:"text" yaml:"text"`
	Categories []Category `json:"categories" yaml:"categories"`
	Weight     float64    `json:"weight" yaml:"weight"`
}

// QuestionDefinition is an immutable question of a versioned question bank.
type QuestionDefinition struct {
	ID            string           `json:"id" yaml:"id"`
	Kind          QuestionKind     `json:"kind" yaml:"kind"`
	Category      Category         `json:"category,omitempty" yaml:"category"`
	Weight        float64          `json:"weight" yaml:"weight"`
	ReverseScored bool             `json:"reverseScored,omitempty" yaml:"reverseScored"`
	Required      bool             `json:"required" yaml:"required"`
	Order         int              `json:"order" yaml:"order"`
	Text          string           `json:"text" yaml:"text"`
	Options       []ScenarioOption `json:"options,omitempty" yaml:"options"`
}

// EffectiveValue returns the statement value after reverse scoring.
func (q QuestionDefinition) EffectiveValue(raw int) int {
	if q.ReverseScored {
		return LikertMax + LikertMin - raw
	}
	return raw
}

// Option returns the scenario option at the 1-based position raw.
func (q QuestionDefinition) Option(raw int) (ScenarioOption, bool) {
	if raw < 1 || raw > len(q.Options) {
		return ScenarioOption{}, false
	}
	return q.Options[raw-1], true
}

// ResponseRecord is a single answer. RawValue is 1-5 for statements and the 1-based option position for scenarios.
type ResponseRecord struct {
	QuestionID     string       `json:"questionId"`
	RawValue       int          `json:"rawValue"`
	ResponseTimeMs int64        `json:"responseTimeMs"`
	Category       Category     `json:"category,omitempty"`
	Kind           QuestionKind `json:"kind,omitempty"`
	AnsweredAt     time.Time    `json:"answeredAt"`
}

// Supersede merges later answers into earlier ones. The latest answer per question wins and first-answer order is
// kept.
func Supersede(earlier []ResponseRecord, later ...ResponseRecord) []ResponseRecord {
	merged := make([]ResponseRecord, 0, len(earlier)+len(later))
	index := make(map[string]int, len(earlier)+len(later))
	for _, list := range [][]ResponseRecord{earlier, later} {
		for _, r := range list {
			if i, ok := index[r.QuestionID]; ok {
				merged[i] = r
				continue
			}
			index[r.QuestionID] = len(merged)
			merged = append(merged, r)
		}
	}
	return merged
}
