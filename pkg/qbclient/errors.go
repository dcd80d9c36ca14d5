// qbclient/errors.go
package qbclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched when QuickBooks reports the entity does not exist
	ErrNotFound = errors.New("quickbooks entity not found")

	// ErrUnavailable is returned while the circuit breaker is open
	ErrUnavailable = errors.New("quickbooks api temporarily unavailable")
)

// objectNotFoundCode is the Fault code QuickBooks uses for unknown ids
const objectNotFoundCode = "610"

// APIError is a non-2xx response from the QuickBooks API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("QuickBooks API returned status %d: %s", e.StatusCode, e.Body)
	}
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("QuickBooks API error (%s, status %d): %s: %s", e.Code, e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("QuickBooks API error (%s, status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for "Object Not Found" faults
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == http.StatusNotFound || e.Code == objectNotFoundCode)
}

func (e *APIError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type faultBody struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var fault faultBody
	if err := json.Unmarshal(body, &fault); err == nil && len(fault.Fault.Error) > 0 {
		first := fault.Fault.Error[0]
		apiErr.Code = first.Code
		apiErr.Message = first.Message
		apiErr.Detail = first.Detail
	}
	return apiErr
}
