package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func init() {
	log.Logger = zerolog.Nop()
}

type fakeTokens struct {
	calls int
	err   error
}

func (f *fakeTokens) Token(ctx context.Context) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return &oauth2.Token{AccessToken: fmt.Sprintf("token-%d", f.calls), TokenType: "Bearer"}, nil
}

type recorded struct {
	method string
	auth   string
	ctype  string
	body   map[string]any
}

func answerServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	requests := &[]recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		raw, _ := io.ReadAll(req.Body)
		r := recorded{
			method: req.Method,
			auth:   req.Header.Get("Authorization"),
			ctype:  req.Header.Get("Content-Type"),
		}
		assert.NoError(t, json.Unmarshal(raw, &r.body))
		*requests = append(*requests, r)

		res.Header().Set("Content-Type", "application/json")
		res.WriteHeader(status)
		_, _ = res.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestAnswer(t *testing.T) {
	srv, requests := answerServer(t, http.StatusOK, `{"answer":{"answerText":"Click reset."}}`)
	tokens := &fakeTokens{}
	c := NewAnswerClient(srv.Client(), tokens, srv.URL+"/servingConfigs/default_search:answer")

	resp, err := c.Answer(context.TODO(), "How do I reset my password?")
	assert.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"answer":{"answerText":"Click reset."}}`, string(resp.Body))

	assert.Len(t, *requests, 1)
	r := (*requests)[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "Bearer token-1", r.auth)
	assert.Equal(t, "application/json", r.ctype)
	assert.Equal(t, map[string]any{
		"query":                map[string]any{"text": "How do I reset my password?", "queryId": ""},
		"session":              "",
		"relatedQuestionsSpec": map[string]any{"enable": true},
		"answerGenerationSpec": map[string]any{
			"ignoreAdversarialQuery":      true,
			"ignoreNonAnswerSeekingQuery": false,
			"ignoreLowRelevantContent":    true,
			"multimodalSpec":              map[string]any{},
			"includeCitations":            true,
			"modelSpec":                   map[string]any{"modelVersion": "stable"},
		},
	}, r.body)
}

func TestAnswerRefreshesTokenEveryCall(t *testing.T) {
	srv, requests := answerServer(t, http.StatusOK, `{}`)
	c := NewAnswerClient(srv.Client(), &fakeTokens{}, srv.URL)

	for _, query := range []string{"first", "", "third"} {
		_, err := c.Answer(context.TODO(), query)
		assert.NoError(t, err)
	}

	assert.Len(t, *requests, 3)
	for i, query := range []string{"first", "", "third"} {
		assert.Equal(t, fmt.Sprintf("Bearer token-%d", i+1), (*requests)[i].auth)
		assert.Equal(t, query, (*requests)[i].body["query"].(map[string]any)["text"])
	}
}

func TestAnswerErrorStatusIsNotAnError(t *testing.T) {
	errorBody := `{"error":{"code":403,"message":"Permission denied","status":"PERMISSION_DENIED"}}`
	srv, _ := answerServer(t, http.StatusForbidden, errorBody)
	c := NewAnswerClient(srv.Client(), &fakeTokens{}, srv.URL)

	resp, err := c.Answer(context.TODO(), "query")
	assert.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, errorBody, string(resp.Body))
}

func TestAnswerNonJSON(t *testing.T) {
	srv, _ := answerServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := NewAnswerClient(srv.Client(), &fakeTokens{}, srv.URL)

	_, err := c.Answer(context.TODO(), "query")
	assert.EqualError(t, err, "unexpected non-JSON response with status code 502: <html>bad gateway</html>")

	var invalid *InvalidResponseError
	if assert.ErrorAs(t, err, &invalid) {
		assert.Equal(t, http.StatusBadGateway, invalid.StatusCode)
		assert.Equal(t, "<html>bad gateway</html>", string(invalid.Body))
		assert.False(t, invalid.OK())
	}
}

func TestAnswerTokenFailure(t *testing.T) {
	srv, requests := answerServer(t, http.StatusOK, `{}`)
	c := NewAnswerClient(srv.Client(), &fakeTokens{err: fmt.Errorf("invalid_grant")}, srv.URL)

	_, err := c.Answer(context.TODO(), "query")
	assert.EqualError(t, err, "failed to get access token: invalid_grant")
	assert.Empty(t, *requests)
}

func TestAnswerNetworkFailure(t *testing.T) {
	c := NewAnswerClient(http.DefaultClient, &fakeTokens{}, "http://127.0.0.1:1/answer")

	_, err := c.Answer(context.TODO(), "query")
	assert.Error(t, err)
}
