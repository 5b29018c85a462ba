// Package scoring turns responses into a normalized per-category score vector.
package scoring

import (
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"log/slog"
	"math"
	"slices"
	"strings"
)

const (
	maxScore = 100
	// epsilon absorbs floating point noise before the range check.
	epsilon = 1e-9
)

type tally struct {
	sum       float64
	max       float64
	questions int
}

// tallies accumulates contributions per category.
type tallies map[models.Category]*tally

func (t tallies) add(c models.Category, contribution, maximum float64) {
	entry, ok := t[c]
	if !ok {
		entry = &tally{}
		t[c] = entry
	}
	entry.sum += contribution
	entry.max += maximum
	entry.questions++
}

// Aggregate computes the score vector of responses against the question definitions.
//
// A statement contributes its effective value times its weight out of a maximum of five times its weight. A scenario
// credits the selected option's weight to each of the option's categories out of the largest weight any option of the
// question gives that category. Later responses to the same question supersede earlier ones.
//
// The result only depends on the set of responses, not their order.
func Aggregate(responses []models.ResponseRecord, questions []models.QuestionDefinition) (models.ScoreVector, error) {
	byID := make(map[string]models.QuestionDefinition, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	merged := models.Supersede(nil, responses...)
	slices.SortFunc(merged, func(a, b models.ResponseRecord) int {
		return strings.Compare(a.QuestionID, b.QuestionID)
	})

	var (
		overall = tallies{}
		byKind  = map[models.QuestionKind]tallies{}
	)
	for _, r := range merged {
		q, ok := byID[r.QuestionID]
		if !ok {
			return models.ScoreVector{}, errors.Wrap(models.ErrUnknownQuestion, "aggregate",
				slog.String("question_id", r.QuestionID))
		}
		kindTallies, ok := byKind[q.Kind]
		if !ok {
			kindTallies = tallies{}
			byKind[q.Kind] = kindTallies
		}
		if err := accumulate(r, q, overall, kindTallies); err != nil {
			return models.ScoreVector{}, err
		}
	}

	categories := categoriesOf(questions)
	vector := models.ScoreVector{
		Categories: nil,
		ByKind:     make(map[models.QuestionKind][]models.CategoryScore, len(byKind)),
	}
	var err error
	if vector.Categories, err = normalize(categories, overall); err != nil {
		return models.ScoreVector{}, err
	}
	for _, kind := range kindsOf(questions) {
		if vector.ByKind[kind], err = normalize(categories, byKind[kind]); err != nil {
			return models.ScoreVector{}, err
		}
	}
	return vector, nil
}

func accumulate(r models.ResponseRecord, q models.QuestionDefinition, sinks ...tallies) error {
	if r.Kind != "" && r.Kind != q.Kind {
		return errors.Wrap(models.ErrInvalidResponse, "kind mismatch",
			slog.String("question_id", q.ID),
			slog.String("response_kind", string(r.Kind)),
			slog.String("question_kind", string(q.Kind)))
	}

	switch q.Kind {
	case models.QuestionKindStatement:
		if r.RawValue < models.LikertMin || r.RawValue > models.LikertMax {
			return errors.Wrap(models.ErrInvalidResponse, "statement value out of range",
				slog.String("question_id", q.ID), slog.Int("raw_value", r.RawValue))
		}
		contribution := float64(q.EffectiveValue(r.RawValue)) * q.Weight
		for _, sink := range sinks {
			sink.add(q.Category, contribution, models.LikertMax*q.Weight)
		}
	case models.QuestionKindScenario:
		selected, ok := q.Option(r.RawValue)
		if !ok {
			return errors.Wrap(models.ErrInvalidResponse, "scenario option out of range",
				slog.String("question_id", q.ID), slog.Int("raw_value", r.RawValue))
		}
		for _, c := range scenarioCategories(q) {
			var contribution float64
			if slices.Contains(selected.Categories, c) {
				contribution = selected.Weight
			}
			for _, sink := range sinks {
				sink.add(c, contribution, maxOptionWeight(q, c))
			}
		}
	default:
		return errors.Wrap(models.ErrInvalidResponse, "unknown question kind",
			slog.String("question_id", q.ID), slog.String("kind", string(q.Kind)))
	}
	return nil
}

func normalize(categories []models.Category, t tallies) ([]models.CategoryScore, error) {
	scores := make([]models.CategoryScore, 0, len(categories))
	for _, c := range categories {
		entry, ok := t[c]
		if !ok || entry.max <= 0 {
			scores = append(scores, models.CategoryScore{Category: c, Score: 0, Questions: 0, Scored: false})
			continue
		}
		score := maxScore * entry.sum / entry.max
		if score < -epsilon || score > maxScore+epsilon || math.IsNaN(score) {
			return nil, errors.Wrap(models.ErrInvariantViolation, "score out of range",
				slog.String("category", string(c)), slog.Float64("score", score))
		}
		scores = append(scores, models.CategoryScore{
			Category:  c,
			Score:     math.Min(maxScore, math.Max(0, score)),
			Questions: entry.questions,
			Scored:    true,
		})
	}
	return scores, nil
}

// scenarioCategories lists every category any option of q touches, sorted.
func scenarioCategories(q models.QuestionDefinition) []models.Category {
	var categories []models.Category
	for _, o := range q.Options {
		categories = append(categories, o.Categories...)
	}
	slices.Sort(categories)
	return slices.Compact(categories)
}

func maxOptionWeight(q models.QuestionDefinition, c models.Category) float64 {
	var maximum float64
	for _, o := range q.Options {
		if slices.Contains(o.Categories, c) && o.Weight > maximum {
			maximum = o.Weight
		}
	}
	return maximum
}

// categoriesOf returns the sorted set of categories the questions can score.
func categoriesOf(questions []models.QuestionDefinition) []models.Category {
	var categories []models.Category
	for _, q := range questions {
		switch q.Kind {
		case models.QuestionKindStatement:
			categories = append(categories, q.Category)
		case models.QuestionKindScenario:
			categories = append(categories, scenarioCategories(q)...)
		}
	}
	slices.Sort(categories)
	return slices.Compact(categories)
}

func kindsOf(questions []models.QuestionDefinition) []models.QuestionKind {
	var kinds []models.QuestionKind
	for _, q := range questions {
		kinds = append(kinds, q.Kind)
	}
	slices.Sort(kinds)
	return slices.Compact(kinds)
}
