package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bracketlab/bracket-engine/engine"
	"github.com/bracketlab/bracket-engine/services"
)

// TestMapServiceErrorToHTTP checks the status code for each class of
// service and engine error.
func TestMapServiceErrorToHTTP(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrCompetitionNotFound, http.StatusNotFound},
		{services.ErrEntrantNotFound, http.StatusNotFound},
		{engine.ErrNodeNotFound, http.StatusNotFound},
		{services.ErrSeedConflict, http.StatusConflict},
		{services.ErrCompetitionFull, http.StatusConflict},
		{services.ErrValidationFailed, http.StatusBadRequest},
		{services.ErrInvalidFormat, http.StatusBadRequest},
		{services.ErrInvalidStatusTransition, http.StatusBadRequest},
		{services.ErrRegistrationNotOpen, http.StatusUnprocessableEntity},
		{services.ErrInsufficientEntrants, http.StatusUnprocessableEntity},
		{services.ErrTooManyEntrants, http.StatusUnprocessableEntity},
		{services.ErrInvalidRegistrationEnd, http.StatusBadRequest},
		{services.ErrBracketNotGenerated, http.StatusUnprocessableEntity},
		{engine.ErrNodeNotSchedulable, http.StatusUnprocessableEntity},
		{engine.ErrDrawNotAllowed, http.StatusUnprocessableEntity},
		{engine.ErrCompetitionNotInProgress, http.StatusUnprocessableEntity},
		{engine.ErrCompetitionHalted, http.StatusConflict},
		{engine.ErrStructuralIntegrity, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		mapServiceErrorToHTTP(rec, req, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}

	// Wrapped sentinels map the same way.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	wrapped := errors.Join(errors.New("context"), services.ErrCompetitionNotFound)
	mapServiceErrorToHTTP(rec, req, wrapped)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("wrapped sentinel: expected 404, got %d", rec.Code)
	}
}

// TestReadJSON checks the request body decoding guards.
func TestReadJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	cases := map[string]string{
		"empty body":      "",
		"malformed":       `{"name":`,
		"unknown field":   `{"nom":"x"}`,
		"trailing values": `{"name":"x"}{"name":"y"}`,
		"wrong type":      `{"name":7}`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		var dst payload
		if err := readJSON(rec, req, &dst); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"open"}`))
	var dst payload
	if err := readJSON(httptest.NewRecorder(), req, &dst); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	if dst.Name != "open" {
		t.Fatalf("expected name %q, got %q", "open", dst.Name)
	}
}

// TestWriteJSON checks the response envelope.
func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeJSON(rec, http.StatusCreated, jsonResponse{"id": 3}, nil); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	if !strings.HasSuffix(rec.Body.String(), "\n") {
		t.Fatal("body must end with a newline")
	}
}
