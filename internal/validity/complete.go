package validity

import (
	"cmp"
	"github.com/myrjola/profilescan/internal/models"
	"slices"
)

// CheckComplete returns a [*models.IncompleteResponsesError] listing every required question without a response,
// in question order.
func CheckComplete(responses []models.ResponseRecord, questions []models.QuestionDefinition) error {
	answered := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		answered[r.QuestionID] = struct{}{}
	}

	ordered := slices.Clone(questions)
	slices.SortStableFunc(ordered, func(a, b models.QuestionDefinition) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})

	var missing []string
	for _, q := range ordered {
		if !q.Required {
			continue
		}
		if _, ok := answered[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		return &models.IncompleteResponsesError{Missing: missing}
	}
	return nil
}
