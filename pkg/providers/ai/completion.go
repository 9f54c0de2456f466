package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultModel = "gpt-4o-mini"

// Completion is a Provider backed by an OpenAI-compatible chat completions
// endpoint. The transport deliberately does no retrying of its own; the
// engine owns the retry policy.
type Completion struct {
	client *resty.Client
	model  string
}

// NewCompletion creates a completion client for the given endpoint. model is
// the default used when a step does not name one.
func NewCompletion(baseURL, apiKey, model string) *Completion {
	if model == "" {
		model = defaultModel
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute).
		SetRetryCount(0)

	return &Completion{
		client: client,
		model:  model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Completion) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
	}

	var parsed chatResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/v1/chat/completions")
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		return "", NewTransient(err)
	}

	if resp.IsError() {
		detail := resp.Status()
		if parsed.Error != nil {
			detail = fmt.Sprintf("%s: %s", resp.Status(), parsed.Error.Message)
		}

		if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError {
			return "", NewTransient(errors.New(detail))
		}

		return "", NewPermanent(errors.New(detail))
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", NewTransient(fmt.Errorf("%w: empty choices", ErrMalformedResponse))
	}

	return parsed.Choices[0].Message.Content, nil
}
