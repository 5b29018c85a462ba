package models_test

import (
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSupersede(t *testing.T) {
	earlier := []models.ResponseRecord{
		{QuestionID: "q1", RawValue: 1},
		{QuestionID: "q2", RawValue: 2},
	}
	got := models.Supersede(earlier,
		models.ResponseRecord{QuestionID: "q3", RawValue: 3},
		models.ResponseRecord{QuestionID: "q1", RawValue: 5},
	)
	require.Equal(t, []models.ResponseRecord{
		{QuestionID: "q1", RawValue: 5},
		{QuestionID: "q2", RawValue: 2},
		{QuestionID: "q3", RawValue: 3},
	}, got)
	require.Equal(t, 1, earlier[0].RawValue, "input must not be mutated")
}

func TestEffectiveValue(t *testing.T) {
	q := models.QuestionDefinition{ReverseScored: true}
	for raw := models.LikertMin; raw <= models.LikertMax; raw++ {
		require.Equal(t, raw, q.EffectiveValue(q.EffectiveValue(raw)))
	}
	require.Equal(t, 1, q.EffectiveValue(5))
	require.Equal(t, 4, models.QuestionDefinition{}.EffectiveValue(4))
}

func TestIncompleteResponsesError(t *testing.T) {
	var err error = &models.IncompleteResponsesError{Missing: []string{"q1", "q7"}}
	require.ErrorIs(t, err, models.ErrIncompleteResponses)
	require.Equal(t, "incomplete responses: missing q1, q7", err.Error())
	require.False(t, models.IsRetryable(err))
	require.True(t, models.IsRetryable(errors.Wrap(models.ErrStaleVersion, "update")))
}

func TestCanonicalOrdering(t *testing.T) {
	ordering, err := models.CanonicalOrdering(models.AssessmentTypeRelationshipPattern)
	require.NoError(t, err)
	require.Len(t, ordering, 8)

	_, err = models.CanonicalOrdering("horoscope")
	require.ErrorIs(t, err, models.ErrUnknownAssessmentType)
}
