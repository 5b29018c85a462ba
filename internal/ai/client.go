package ai

import (
	"context"
	"encoding/json"
	"github.com/kaptinlin/jsonrepair"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/insights"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/sashabaranov/go-openai"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

type Config struct {
	APIKey string
	// BaseURL overrides the OpenAI endpoint, e.g. for a compatible gateway.
	BaseURL string
	Model   string
}

type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewClient(logger *slog.Logger, cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo1106
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.With(slog.String("source", "ai.Client")),
	}
}

const MaxTokens = 4096

const systemPrompt = `You are a relationship psychologist writing feedback for a self-assessment.
You receive the result as JSON: per-category scores from 0 to 100, the primary and optional secondary category,
a blindspot index from 0 to 100 where higher means the respondent's self-description and their choices in concrete
situations disagree, a lowConfidence flag and optional context the respondent shared about themselves.

Write warm, concrete, non-clinical feedback in English. Never diagnose. When lowConfidence is true, say that the
result is tentative. Refer to categories by their label.

Reply with a single JSON object and nothing else, using these keys:
"headline" (string), "interpretation" (string), "examples" (array of strings), "triggers" (array of strings),
"strategies" (array of strings), "blindspots" (array of strings),
"exercises" (array of objects with "title", "description" and "steps" array of strings),
"conversationScripts" (object mapping a short situation key to a script),
"recommendedTools" (array of objects with "name", "url" and "reason").`

// Generate implements [insights.NarrativeGenerator].
func (c *Client) Generate(ctx context.Context, prompt insights.StructuredPrompt) (models.InsightPayload, error) {
	input, err := json.Marshal(prompt)
	if err != nil {
		return models.InsightPayload{}, errors.Wrap(err, "marshal prompt")
	}

	completion, err := c.SyncCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}, //nolint:exhaustruct // readability
		{Role: openai.ChatMessageRoleUser, Content: string(input)},  //nolint:exhaustruct // readability
	})
	if err != nil {
		return models.InsightPayload{}, err
	}
	if len(completion.Choices) == 0 {
		return models.InsightPayload{}, errors.Wrap(insights.ErrMalformed, "no choices")
	}
	choice := completion.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "completion truncated", slog.Int("max_tokens", MaxTokens))
	}
	return ParsePayload(choice.Message.Content)
}

func (c *Client) SyncCompletion(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (openai.ChatCompletionResponse, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages:  messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return openai.ChatCompletionResponse{}, errors.Wrap(classify(err), "create chat completion")
	}
	return completion, nil
}

// classify marks rate limits, upstream server errors and network failures as transient.
func classify(err error) error {
	var (
		apiErr     *openai.APIError
		requestErr *openai.RequestError
		netErr     net.Error
		status     int
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &requestErr):
		status = requestErr.HTTPStatusCode
	case errors.As(err, &netErr):
		return errors.Join(insights.ErrTransient, err)
	default:
		return err
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return errors.Join(insights.ErrTransient, err)
	}
	return err
}

// ParsePayload decodes model output. Markdown code fences are stripped and slightly broken JSON is repaired.
func ParsePayload(content string) (models.InsightPayload, error) {
	content = stripCodeFence(content)

	var payload models.InsightPayload
	err := json.Unmarshal([]byte(content), &payload)
	if err == nil {
		return payload, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return models.InsightPayload{}, errors.Wrap(insights.ErrMalformed, "repair json",
			slog.String("decode_error", err.Error()), slog.String("repair_error", repairErr.Error()))
	}
	payload = models.InsightPayload{}
	if err = json.Unmarshal([]byte(repaired), &payload); err != nil {
		return models.InsightPayload{}, errors.Wrap(insights.ErrMalformed, "decode repaired json",
			slog.String("decode_error", err.Error()))
	}
	return payload, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	// Drop the language tag, e.g. ```json.
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		content = content[newline+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
