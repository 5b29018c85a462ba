package main

import (
	"context"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/stretchr/testify/require"
	"net/http"
	"slices"
	"testing"
)

// completeAnswers answers every question so that lean scores highest.
func completeAnswers(definition questionbank.Definition, lean models.Category) []responseInput {
	var answers []responseInput
	for _, q := range definition.Questions {
		in := responseInput{QuestionID: q.ID, RawValue: 1, ResponseTimeMs: 2400, Kind: "", AnsweredAt: nil}
		switch q.Kind {
		case models.QuestionKindStatement:
			desired := 2
			if q.Category == lean {
				desired = 5
			}
			in.RawValue = q.EffectiveValue(desired)
		case models.QuestionKindScenario:
			for i, o := range q.Options {
				if slices.Contains(o.Categories, lean) {
					in.RawValue = i + 1
					break
				}
			}
		}
		answers = append(answers, in)
	}
	return answers
}

func TestAssessmentAPI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := startTestServer(t, testLookupEnv).Client()

	var definition questionbank.Definition
	status, err := client.JSON(ctx, http.MethodGet, "/api/question-banks/attachment_style", nil, &definition)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "v1", definition.Version)
	answers := completeAnswers(definition, models.CategoryAvoidant)

	var record models.AssessmentRecord
	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments", startRequest{
		AssessmentType: models.AssessmentTypeAttachmentStyle,
		UserID:         "",
		Context:        models.RespondentContext{DatingPhase: "single", StressLevel: 3}, //nolint:exhaustruct // partial
	}, &record)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, models.StateStarted, record.State)
	id := record.ID

	status, err = client.JSON(ctx, http.MethodPut, "/api/assessments/"+id+"/responses", answers[0], nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, status)

	var incomplete errorResponse
	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments/"+id+"/submit", nil, &incomplete)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, incomplete.Missing, len(answers)-1)
	require.Equal(t, answers[1].QuestionID, incomplete.Missing[0])

	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments/"+id+"/submit",
		submitRequest{Responses: answers[1:]}, &record)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.StateFinalized, record.State)
	require.Equal(t, models.CategoryAvoidant, record.Classification.PrimaryCategory)
	require.True(t, record.InsightsDegraded, "no narrative generator is configured")
	require.Equal(t, models.InsightSourceFallback, record.Insights.Source)

	var stored models.AssessmentRecord
	status, err = client.JSON(ctx, http.MethodGet, "/api/assessments/"+id, nil, &stored)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, record.Classification, stored.Classification)
	require.Equal(t, record.Version, stored.Version)

	var replayed models.AssessmentRecord
	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments/"+id+"/submit", nil, &replayed)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, stored.Version, replayed.Version, "resubmission does not touch the record")

	status, err = client.JSON(ctx, http.MethodPut, "/api/assessments/"+id+"/responses", answers[0], nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, status)
}

func TestAssessmentAPI_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := startTestServer(t, testLookupEnv).Client()

	var record models.AssessmentRecord
	status, err := client.JSON(ctx, http.MethodPost, "/api/assessments",
		map[string]any{"assessmentType": "relationship_pattern"}, &record)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{
			name:       "unknown assessment type",
			method:     http.MethodPost,
			path:       "/api/assessments",
			body:       map[string]any{"assessmentType": "horoscope"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			method:     http.MethodPost,
			path:       "/api/assessments",
			body:       map[string]any{"assessmentType": "attachment_style", "premium": true},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing assessment",
			method:     http.MethodGet,
			path:       "/api/assessments/does-not-exist",
			body:       nil,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown question",
			method:     http.MethodPut,
			path:       "/api/assessments/" + record.ID + "/responses",
			body:       map[string]any{"questionId": "as-s01", "rawValue": 3},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "value out of range",
			method:     http.MethodPut,
			path:       "/api/assessments/" + record.ID + "/responses",
			body:       map[string]any{"questionId": "rp-s01", "rawValue": 9},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown question bank",
			method:     http.MethodGet,
			path:       "/api/question-banks/horoscope",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/unknown",
			body:       nil,
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			status, err = client.JSON(ctx, tt.method, tt.path, tt.body, &body)
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, status)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestAssessmentAPI_RetakeCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := startTestServer(t, testLookupEnv).Client()

	var definition questionbank.Definition
	status, err := client.JSON(ctx, http.MethodGet, "/api/question-banks/relationship_pattern", nil, &definition)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	start := startRequest{
		AssessmentType: models.AssessmentTypeRelationshipPattern,
		UserID:         "user-42",
		Context:        models.RespondentContext{}, //nolint:exhaustruct // empty
	}
	var record models.AssessmentRecord
	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments", start, &record)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments/"+record.ID+"/submit",
		submitRequest{Responses: completeAnswers(definition, models.CategoryRebound)}, &record)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var body errorResponse
	status, err = client.JSON(ctx, http.MethodPost, "/api/assessments", start, &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, models.ErrRetakeCooldown.Error(), body.Error)
}
