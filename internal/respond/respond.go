// respond/respond.go
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

// Envelope is the uniform body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

// OK writes a successful envelope
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// OKWithMessage writes a successful envelope with a message
func OKWithMessage(w http.ResponseWriter, data interface{}, message string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

// Created writes a 201 envelope with a Location header
func Created(w http.ResponseWriter, location string, data interface{}, message string) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes a failure envelope
func Fail(w http.ResponseWriter, status int, errMsg string) {
	JSON(w, status, Envelope{Success: false, Error: errMsg})
}

// AuthRequired writes the 401 that points the caller at re-authorization
func AuthRequired(w http.ResponseWriter, companyID string) {
	Fail(w, http.StatusUnauthorized, fmt.Sprintf(
		"No valid OAuth tokens found for companyId: %s. Please complete OAuth authorization first by visiting: /auth/authorize",
		companyID))
}

// Upstream maps QuickBooks client errors to responses
func Upstream(w http.ResponseWriter, err error) {
	var apiErr *qbclient.APIError
	switch {
	case errors.Is(err, qbclient.ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, qbclient.ErrUnavailable):
		Fail(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr):
		Fail(w, http.StatusBadGateway, apiErr.Error())
	default:
		Fail(w, http.StatusBadGateway, err.Error())
	}
}

// DecodeJSON decodes the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("request body must be valid JSON: %w", err)
	}
	return nil
}
