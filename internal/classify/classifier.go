// Package classify decides the primary and secondary category of a score vector.
package classify

import (
	"cmp"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"log/slog"
	"math"
	"slices"
)

const DefaultSecondaryMargin = 15

type Classifier struct {
	// Ordering is the canonical category ordering used as the final tie-breaker. Categories outside it are ignored.
	Ordering []models.Category
	// SecondaryMargin is the largest score gap at which the runner-up is still reported.
	SecondaryMargin float64
}

// New creates a Classifier for the assessment type with the default secondary margin.
func New(t models.AssessmentType) (*Classifier, error) {
	ordering, err := models.CanonicalOrdering(t)
	if err != nil {
		return nil, errors.Wrap(err, "canonical ordering", slog.String("assessment_type", string(t)))
	}
	return &Classifier{Ordering: ordering, SecondaryMargin: DefaultSecondaryMargin}, nil
}

// Classify ranks the eligible categories of vector by score, then by the number of contributing questions, then by
// canonical order. Unreliable validity only lowers confidence, classification always proceeds.
func (c *Classifier) Classify(
	vector models.ScoreVector,
	report models.ValidityReport,
) (models.ClassificationResult, error) {
	ranked := c.rank(vector.Categories)
	if len(ranked) == 0 {
		return models.ClassificationResult{}, errors.Wrap(models.ErrInvariantViolation, "no eligible category")
	}

	result := models.ClassificationResult{
		PrimaryCategory:   ranked[0].Category,
		SecondaryCategory: "",
		BlindspotIndex:    c.blindspotIndex(vector),
		ScoreVector:       vector,
		Validity:          report,
		LowConfidence:     !report.IsReliable,
	}
	if len(ranked) > 1 && ranked[0].Score-ranked[1].Score <= c.SecondaryMargin {
		result.SecondaryCategory = ranked[1].Category
	}
	return result, nil
}

// rank returns the scored categories in the ordering, best first.
func (c *Classifier) rank(scores []models.CategoryScore) []models.CategoryScore {
	position := make(map[models.Category]int, len(c.Ordering))
	for i, category := range c.Ordering {
		position[category] = i
	}

	eligible := make([]models.CategoryScore, 0, len(scores))
	for _, s := range scores {
		if _, ok := position[s.Category]; ok && s.Scored {
			eligible = append(eligible, s)
		}
	}
	slices.SortStableFunc(eligible, func(a, b models.CategoryScore) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(b.Questions, a.Questions),
			cmp.Compare(position[a.Category], position[b.Category]),
		)
	})
	return eligible
}

// blindspotIndex compares how the respondent describes themselves in statements with what they choose in scenarios.
// Agreement on the primary category maps to [0, 50] by the score gap of that category, disagreement to [50, 100].
func (c *Classifier) blindspotIndex(vector models.ScoreVector) float64 {
	statements := vector.ByKind[models.QuestionKindStatement]
	scenarios := vector.ByKind[models.QuestionKindScenario]
	statementRanked := c.rank(statements)
	scenarioRanked := c.rank(scenarios)
	if len(statementRanked) == 0 || len(scenarioRanked) == 0 {
		return 0
	}

	s := statementRanked[0].Category
	sc := scenarioRanked[0].Category
	score := func(scores []models.CategoryScore, category models.Category) float64 {
		found, _ := models.FindScore(scores, category)
		return found.Score
	}

	var index float64
	if s == sc {
		index = math.Abs(score(statements, s)-score(scenarios, s)) / 2 //nolint:mnd // maps [0, 100] to [0, 50]
	} else {
		index = 50 + //nolint:mnd // disagreement starts at the midpoint
			(math.Abs(score(statements, s)-score(statements, sc))+
				math.Abs(score(scenarios, sc)-score(scenarios, s)))/4 //nolint:mnd // maps [0, 200] to [0, 50]
	}
	return math.Min(100, math.Max(0, index)) //nolint:mnd // bounds
}
