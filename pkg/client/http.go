package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source of bearer tokens, refreshed on every call
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type AnswerClient struct {
	HTTPClient
	Tokens   TokenProvider
	Endpoint string
}

// Raw response of the answer API
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Response whose body is not JSON. Body holds the raw bytes.
type InvalidResponseError struct {
	Response
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("unexpected non-JSON response with status code %d: %s", e.StatusCode, truncate(e.Body, 256))
}

func NewAnswerClient(client HTTPClient, tokens TokenProvider, endpoint string) *AnswerClient {
	return &AnswerClient{
		HTTPClient: client,
		Tokens:     tokens,
		Endpoint:   endpoint,
	}
}

// Build the HTTP request for a query, authorized with a fresh token
func (c *AnswerClient) NewRequest(ctx context.Context, query string) (*http.Request, error) {
	body, err := json.Marshal(models.NewAnswerQuery(query))
	if err != nil {
		return nil, err
	}

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Send a query and return the JSON body whatever the status code.
// A body that is not JSON is an error.
func (c *AnswerClient) Answer(ctx context.Context, query string) (*Response, error) {
	req, err := c.NewRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, &InvalidResponseError{Response{StatusCode: resp.StatusCode, Body: body}}
	}

	response := &Response{StatusCode: resp.StatusCode, Body: body}
	if !response.OK() {
		log.Warn().Int("status", resp.StatusCode).Msg("answer api returned an error status")
	}
	return response, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
