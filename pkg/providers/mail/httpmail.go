package mail

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient is a Client backed by a JSON mail API.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(30 * time.Second).
		SetRetryCount(0)

	return &HTTPClient{client: client}
}

func (c *HTTPClient) ListMessages(ctx context.Context, filter Filter) ([]MessageRef, error) {
	params := map[string]string{}
	if filter.From != "" {
		params["from"] = filter.From
	}

	if !filter.Since.IsZero() {
		params["since"] = filter.Since.UTC().Format(time.RFC3339)
	}

	if filter.Limit > 0 {
		params["limit"] = strconv.Itoa(filter.Limit)
	}

	var refs []MessageRef

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&refs).
		Get("/messages")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("list messages: %s", resp.Status())
	}

	return refs, nil
}

func (c *HTTPClient) FetchMessage(ctx context.Context, id string) (*Message, error) {
	var message Message

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&message).
		SetPathParam("id", id).
		Get("/messages/{id}")
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrMessageNotFound
	}

	if resp.IsError() {
		return nil, fmt.Errorf("fetch message %s: %s", id, resp.Status())
	}

	return &message, nil
}
