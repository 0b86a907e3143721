package api

import (
	"net/http"
	"testing"
)

func TestErrorInterface(t *testing.T) {
	var _ error = &Error{}
}

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"schema cache missing", NewSchemaCacheMissing(), http.StatusServiceUnavailable},
		{"connection lost", NewConnectionLost(nil), http.StatusServiceUnavailable},
		{"invalid request", NewInvalidRequest("bad filter"), http.StatusBadRequest},
		{"not found", NewNotFound("no such relation"), http.StatusNotFound},
		{"jwt", NewJWTError("expired"), http.StatusUnauthorized},
		{"singularity", NewSingularityError(2), http.StatusNotAcceptable},
		{"change limit", NewChangeLimitError(11, 10), http.StatusBadRequest},
		{"put pk", NewPutMatchingPkError(), http.StatusBadRequest},
		{"binary field", NewBinaryFieldError(MediaOctetStream), http.StatusNotAcceptable},
		{"method not allowed", NewMethodNotAllowed("DELETE", "films"), http.StatusMethodNotAllowed},
		{"database", NewDatabaseError("boom", "", "", nil), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorUnavailable(t *testing.T) {
	if !NewSchemaCacheMissing().Unavailable() {
		t.Error("schema cache missing should be unavailable")
	}
	if !NewConnectionLost(nil).Unavailable() {
		t.Error("connection lost should be unavailable")
	}
	if NewNotFound("x").Unavailable() {
		t.Error("not found should not be unavailable")
	}
}

func TestDatabaseErrorDetailGating(t *testing.T) {
	err := NewDatabaseError("division by zero", "at character 12", "check the denominator", nil)

	anon := err.Body(false)
	if anon.Details != "" || anon.Hint != "" {
		t.Errorf("anonymous body leaked details: %+v", anon)
	}
	if anon.Message != "division by zero" {
		t.Errorf("anonymous body lost message: %+v", anon)
	}

	authed := err.Body(true)
	if authed.Details != "at character 12" || authed.Hint != "check the denominator" {
		t.Errorf("authenticated body missing details: %+v", authed)
	}
}

func TestNonDatabaseErrorsKeepDetails(t *testing.T) {
	err := NewSingularityError(3)
	body := err.Body(false)
	if body.Details == "" {
		t.Error("integrity error details should survive for anonymous callers")
	}
}

func TestChangeLimitErrorNamesCounts(t *testing.T) {
	err := NewChangeLimitError(15, 10)
	if want := "query result exceeds max-changes limit 10"; err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
	if want := "the query affects 15 rows"; err.Details != want {
		t.Errorf("Details = %q, want %q", err.Details, want)
	}
}
