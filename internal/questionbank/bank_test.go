package questionbank_test

import (
	"context"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/stretchr/testify/require"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
)

func TestEmbedded(t *testing.T) {
	bank, err := questionbank.NewEmbedded()
	require.NoError(t, err)

	for _, assessmentType := range []models.AssessmentType{
		models.AssessmentTypeAttachmentStyle,
		models.AssessmentTypeRelationshipPattern,
	} {
		t.Run(string(assessmentType), func(t *testing.T) {
			version, err := bank.LatestVersion(assessmentType)
			require.NoError(t, err)
			require.Equal(t, "v1", version)

			def, err := bank.Questions(context.Background(), assessmentType, version)
			require.NoError(t, err)
			ordering, err := models.CanonicalOrdering(assessmentType)
			require.NoError(t, err)
			require.Equal(t, ordering, def.Categories)

			// Every category must be reachable from both statements and scenarios.
			statementCategories := map[models.Category]bool{}
			var scenarios int
			for i, q := range def.Questions {
				if i > 0 {
					require.Greater(t, q.Order, def.Questions[i-1].Order)
				}
				require.True(t, q.Required)
				switch q.Kind {
				case models.QuestionKindStatement:
					statementCategories[q.Category] = true
				case models.QuestionKindScenario:
					scenarios++
				}
			}
			require.Len(t, statementCategories, len(ordering))
			require.GreaterOrEqual(t, scenarios, 2)
		})
	}

	_, err = bank.Questions(context.Background(), models.AssessmentTypeAttachmentStyle, "v99")
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = bank.Questions(context.Background(), "horoscope", "v1")
	require.ErrorIs(t, err, models.ErrUnknownAssessmentType)
	_, err = bank.LatestVersion("horoscope")
	require.ErrorIs(t, err, models.ErrUnknownAssessmentType)
}

const minimalBank = `
assessmentType: attachment_style
version: VERSION
categories: [secure, anxious, avoidant, fearful_avoidant]
labels: {secure: Secure, anxious: Anxious, avoidant: Avoidant, fearful_avoidant: Fearful-avoidant}
questions:
  - id: q2
    kind: statement
    category: anxious
    order: 2
    required: false
    weight: 2.5
  - id: q1
    kind: statement
    category: secure
    order: 1
`

func TestParse(t *testing.T) {
	def, err := questionbank.Parse([]byte(strings.Replace(minimalBank, "VERSION", "v1", 1)))
	require.NoError(t, err)
	require.Equal(t, "q1", def.Questions[0].ID)
	require.InDelta(t, 1.0, def.Questions[0].Weight, 0)
	require.True(t, def.Questions[0].Required)
	require.InDelta(t, 2.5, def.Questions[1].Weight, 0)
	require.False(t, def.Questions[1].Required)
	require.Equal(t, "Fearful-avoidant", def.Label(models.CategoryFearfulAvoidant))

	q, ok := def.Question("q2")
	require.True(t, ok)
	require.Equal(t, models.CategoryAnxious, q.Category)
}

func TestParse_Invalid(t *testing.T) {
	valid := strings.Replace(minimalBank, "VERSION", "v1", 1)
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "unknown category",
			yaml:    strings.Replace(valid, "category: anxious", "category: jealous", 1),
			wantErr: questionbank.ErrInvalidBank,
		},
		{
			name:    "duplicate id",
			yaml:    strings.Replace(valid, "id: q2", "id: q1", 1),
			wantErr: questionbank.ErrInvalidBank,
		},
		{
			name:    "non-positive weight",
			yaml:    strings.Replace(valid, "weight: 2.5", "weight: 0", 1),
			wantErr: questionbank.ErrInvalidBank,
		},
		{
			name:    "wrong category ordering",
			yaml:    strings.Replace(valid, "[secure, anxious,", "[anxious, secure,", 1),
			wantErr: questionbank.ErrInvalidBank,
		},
		{
			name:    "unknown assessment type",
			yaml:    strings.Replace(valid, "attachment_style", "horoscope", 1),
			wantErr: models.ErrUnknownAssessmentType,
		},
		{
			name: "scenario option with unknown category",
			yaml: valid + `  - id: q3
    kind: scenario
    order: 3
    options:
      - {id: a, categories: [secure], weight: 1}
      - {id: b, categories: [clingy], weight: 1}
`,
			wantErr: questionbank.ErrInvalidBank,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := questionbank.Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := questionbank.Parse([]byte(valid + "unexpected: true\n"))
	require.Error(t, err)
}

func TestNewFromFS_LatestVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"banks/a.v2.yaml":  {Data: []byte(strings.Replace(minimalBank, "VERSION", "v2", 1))},
		"banks/a.v10.yaml": {Data: []byte(strings.Replace(minimalBank, "VERSION", "v10", 1))},
		"banks/README.md":  {Data: []byte("ignored")},
	}
	bank, err := questionbank.NewFromFS(fsys, "banks")
	require.NoError(t, err)
	latest, err := bank.LatestVersion(models.AssessmentTypeAttachmentStyle)
	require.NoError(t, err)
	require.Equal(t, "v10", latest)
}

type countingProvider struct {
	questionbank.Provider
	loads atomic.Int64
}

func (p *countingProvider) Questions(
	ctx context.Context,
	t models.AssessmentType,
	version string,
) (*questionbank.Definition, error) {
	p.loads.Add(1)
	return p.Provider.Questions(ctx, t, version) //nolint:wrapcheck // test
}

func TestCache(t *testing.T) {
	embedded, err := questionbank.NewEmbedded()
	require.NoError(t, err)
	source := &countingProvider{Provider: embedded}
	cache, err := questionbank.NewCache(source, 0)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def, qErr := cache.Questions(ctx, models.AssessmentTypeAttachmentStyle, "v1")
			if qErr == nil && def.Version != "v1" {
				t.Errorf("unexpected version %s", def.Version)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), source.loads.Load())
	require.Equal(t, 1, cache.Len())

	cache.Invalidate(models.AssessmentTypeAttachmentStyle, "v1")
	_, err = cache.Questions(ctx, models.AssessmentTypeAttachmentStyle, "v1")
	require.NoError(t, err)
	require.Equal(t, int64(2), source.loads.Load())

	_, err = cache.Questions(ctx, models.AssessmentTypeRelationshipPattern, "v1")
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())
	cache.Purge()
	require.Equal(t, 0, cache.Len())

	_, err = cache.Questions(ctx, models.AssessmentTypeAttachmentStyle, "v7")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, 0, cache.Len(), "errors are not cached")

	latest, err := cache.LatestVersion(models.AssessmentTypeRelationshipPattern)
	require.NoError(t, err)
	require.Equal(t, "v1", latest)
}
