package ai_test

import (
	"context"
	"encoding/json"
	"github.com/myrjola/profilescan/internal/ai"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/insights"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantHeadline string
		wantErr      error
	}{
		{
			name:         "plain json",
			content:      `{"headline":"Secure base","interpretation":"You trust easily."}`,
			wantHeadline: "Secure base",
		},
		{
			name:         "fenced json",
			content:      "```json\n{\"headline\":\"Fenced\",\"interpretation\":\"i\"}\n```",
			wantHeadline: "Fenced",
		},
		{
			name:         "trailing comma is repaired",
			content:      `{"headline":"Repaired","interpretation":"i","examples":["a","b",],}`,
			wantHeadline: "Repaired",
		},
		{
			name:    "not an object",
			content: `["headline"]`,
			wantErr: insights.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ai.ParsePayload(tt.content)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantHeadline, payload.Headline)
		})
	}
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
}

func TestClient_Generate(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          any
		wantHeadline  string
		wantTransient bool
		wantErr       error
	}{
		{
			name:         "success",
			status:       http.StatusOK,
			body:         completionResponse("```json\n{\"headline\":\"From the model\",\"interpretation\":\"i\"}\n```"),
			wantHeadline: "From the model",
		},
		{
			name:          "server error is transient",
			status:        http.StatusServiceUnavailable,
			body:          map[string]any{"error": map[string]any{"message": "overloaded", "type": "server_error"}},
			wantTransient: true,
		},
		{
			name:          "rate limit is transient",
			status:        http.StatusTooManyRequests,
			body:          map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit"}},
			wantTransient: true,
		},
		{
			name:          "bad request is permanent",
			status:        http.StatusBadRequest,
			body:          map[string]any{"error": map[string]any{"message": "bad", "type": "invalid_request_error"}},
			wantTransient: false,
		},
		{
			name:    "prose instead of json",
			status:  http.StatusOK,
			body:    completionResponse(`["I am sorry"]`),
			wantErr: insights.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotRequest map[string]any
				gotPath    string
				gotAuth    string
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				body, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(body, &gotRequest)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			client := ai.NewClient(testhelpers.NewLogger(io.Discard), ai.Config{
				APIKey:  "test-key",
				BaseURL: srv.URL + "/v1",
				Model:   "test-model",
			})
			payload, err := client.Generate(context.Background(), insights.StructuredPrompt{
				AssessmentType: models.AssessmentTypeAttachmentStyle,
				Title:          "attachment profile",
				Primary:        insights.PromptScore{Category: models.CategorySecure, Label: "Secure", Score: 82},
			})

			require.Equal(t, "/v1/chat/completions", gotPath)
			require.Equal(t, "Bearer test-key", gotAuth)
			require.Equal(t, "test-model", gotRequest["model"])
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.status != http.StatusOK:
				require.Error(t, err)
				require.Equal(t, tt.wantTransient, errors.Is(err, insights.ErrTransient))
			default:
				require.NoError(t, err)
				require.Equal(t, tt.wantHeadline, payload.Headline)
			}
		})
	}
}
