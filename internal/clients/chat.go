package clients

import (
	"context"
	"strings"

	"claimlens/internal/services"
)

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false, so tolerate it as a fallback.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy "text" field (completion-style responses).
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// completeJSON issues one JSON-only chat completion call and returns the raw
// content produced by the model.
func (c *httpCore) completeJSON(ctx context.Context, operation, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrPermanent, c.stage, operation, "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(systemPrompt)},
			{Role: "user", Content: strings.TrimSpace(userPrompt)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	var completion chatCompletionResponse
	if err := c.postJSON(ctx, "", operation, payload, &completion); err != nil {
		return "", err
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrPermanent, c.stage, operation, "api error", stringsError(completion.Error.Message))
	}
	content := extractCompletionContent(completion)
	if content == "" {
		// Providers occasionally return empty choices under load; worth a retry.
		return "", services.Wrap(services.ErrTransient, c.stage, operation, "empty completion content", nil)
	}
	return content, nil
}

func extractCompletionContent(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type textError string

func (e textError) Error() string { return string(e) }

func stringsError(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	return textError(message)
}
