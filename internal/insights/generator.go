// Package insights turns a classification into a human-readable explanation. An external narrative generator is
// preferred, and a deterministic catalog-based fallback is always available.
package insights

import (
	"context"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"log/slog"
	"slices"
)

var (
	// ErrTransient marks generator failures worth retrying, such as rate limits or upstream 5xx responses.
	ErrTransient = errors.NewSentinel("transient narrative failure")
	// ErrMalformed marks generator output that cannot be used.
	ErrMalformed = errors.NewSentinel("malformed narrative")
)

// NarrativeGenerator writes an InsightPayload for a prompt. Implementations must honor ctx cancellation.
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt StructuredPrompt) (models.InsightPayload, error)
}

type PromptScore struct {
	Category  models.Category `json:"category"`
	Label     string          `json:"label"`
	Score     float64         `json:"score"`
	Questions int             `json:"questions"`
}

// StructuredPrompt is everything a narrative generator may know about a result.
type StructuredPrompt struct {
	AssessmentType models.AssessmentType    `json:"assessmentType"`
	Title          string                   `json:"title"`
	Scores         []PromptScore            `json:"scores"`
	Primary        PromptScore              `json:"primary"`
	Secondary      *PromptScore             `json:"secondary,omitempty"`
	BlindspotIndex float64                  `json:"blindspotIndex"`
	LowConfidence  bool                     `json:"lowConfidence"`
	Warnings       []models.Warning         `json:"warnings,omitempty"`
	Context        models.RespondentContext `json:"context"`
}

// Validate checks the shape of a payload. The text fields and the example, trigger, strategy and blindspot lists
// are required. Content is not judged.
func Validate(p models.InsightPayload) error {
	var errorList []error
	if p.Headline == "" {
		errorList = append(errorList, errors.New("missing headline"))
	}
	if p.Interpretation == "" {
		errorList = append(errorList, errors.New("missing interpretation"))
	}
	for _, list := range []struct {
		name  string
		items []string
	}{
		{name: "examples", items: p.Examples},
		{name: "triggers", items: p.Triggers},
		{name: "strategies", items: p.Strategies},
		{name: "blindspots", items: p.Blindspots},
	} {
		if !slices.ContainsFunc(list.items, func(s string) bool { return s != "" }) {
			errorList = append(errorList, errors.New("empty "+list.name, slog.String("field", list.name)))
		}
	}
	for _, e := range p.Exercises {
		if e.Title == "" {
			errorList = append(errorList, errors.New("exercise without title"))
		}
	}
	for _, t := range p.RecommendedTools {
		if t.Name == "" {
			errorList = append(errorList, errors.New("tool without name"))
		}
	}
	if len(errorList) > 0 {
		return errors.Wrap(ErrMalformed, errors.Join(errorList...).Error())
	}
	return nil
}
