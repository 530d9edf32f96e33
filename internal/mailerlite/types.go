package mailerlite

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MaxBatchSize is the most sub-requests MailerLite accepts per batch call.
const MaxBatchSize = 50

// Config holds MailerLite API configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SubscriberFields are the custom fields set on a subscriber.
type SubscriberFields struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Subscriber is the body of a create-or-update subscriber call.
type Subscriber struct {
	Email  string           `json:"email"`
	Fields SubscriberFields `json:"fields"`
	Groups []string         `json:"groups"`
}

// BatchRequest is one sub-request inside a batch call.
type BatchRequest struct {
	Method string     `json:"method"`
	Path   string     `json:"path"`
	Body   Subscriber `json:"body"`
}

// NewSubscriberRequest wraps a subscriber upsert as a batch sub-request.
func NewSubscriberRequest(s Subscriber) BatchRequest {
	return BatchRequest{Method: http.MethodPost, Path: "/api/subscribers", Body: s}
}

type batchPayload struct {
	Requests []BatchRequest `json:"requests"`
}

// BatchResponse is the aggregate result of a batch call.
type BatchResponse struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Responses  []BatchItemResponse `json:"responses"`
}

// BatchItemResponse is the result of one sub-request.
type BatchItemResponse struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body,omitempty"`
}

// OK reports whether the subscriber was created (201) or updated (200).
func (r BatchItemResponse) OK() bool {
	return r.Code == http.StatusOK || r.Code == http.StatusCreated
}

// Email returns the subscriber email echoed in the response body, if any.
// Successful upserts echo {"data":{"email":...}}; errors usually don't.
func (r BatchItemResponse) Email() string {
	if len(r.Body) == 0 {
		return ""
	}
	var body struct {
		Data struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return ""
	}
	return body.Data.Email
}

// Message returns the error message of a rejected sub-request, if any.
func (r BatchItemResponse) Message() string {
	var body struct {
		Message string `json:"message"`
	}
	if len(r.Body) == 0 || json.Unmarshal(r.Body, &body) != nil {
		return ""
	}
	return body.Message
}

// APIError is returned when MailerLite rejects a whole call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailerlite API error (status %d): %s", e.StatusCode, e.Body)
}
