package models

import "encoding/json"

type MetadataResponse struct {
	Ezanswer   bool   `json:"ezanswer"`
	APIVersion string `json:"api_version"`
}

// Body of POST /ezanswer/1.0/answer
type AnswerRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

type AnswerResponse struct {
	Data json.RawMessage `json:"data"`
}

// Returned when the answer API responds with a non-2xx status
type UpstreamErrorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
