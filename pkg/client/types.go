package client

import "fmt"

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// APIError is a non-2xx response decoded from the daemon's error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}
