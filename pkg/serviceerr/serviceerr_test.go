package serviceerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetExpectedStatusAndCode(t *testing.T) {
	tests := []struct {
		name       string
		err        *ServiceError
		wantCode   Code
		wantStatus int
	}{
		{"invalid input", InvalidInput("bad request"), CodeInvalidInput, http.StatusBadRequest},
		{"unsupported media", UnsupportedMedia("text/plain"), CodeUnsupportedMedia, http.StatusBadRequest},
		{"payload too large", PayloadTooLarge(1024), CodePayloadTooLarge, http.StatusBadRequest},
		{"not found", NotFound("analysis", "123"), CodeNotFound, http.StatusNotFound},
		{"conflict", Conflict("already claimed"), CodeConflict, http.StatusConflict},
		{"guardrail rejected", GuardrailRejected("not a diagram"), CodeGuardrailRejected, http.StatusBadRequest},
		{"provider failure", ProviderFailure(errors.New("boom")), CodeProviderFailure, http.StatusInternalServerError},
		{"internal", Internal("unexpected", errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestUnsupportedMediaAttachesContentTypeDetail(t *testing.T) {
	err := UnsupportedMedia("application/pdf")
	assert.Equal(t, "application/pdf", err.Details["content_type"])
}

func TestProviderFailureWrapsUnderlyingError(t *testing.T) {
	cause := errors.New("all engines failed")
	err := ProviderFailure(cause)
	assert.ErrorIs(t, err, cause)
}

func TestAsExtractsExistingServiceError(t *testing.T) {
	original := NotFound("analysis", "abc")
	got := As(original)
	assert.Same(t, original, got)
}

func TestAsWrapsPlainErrorAsInternal(t *testing.T) {
	got := As(errors.New("plain failure"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
}

func TestAsReturnsNilForNilError(t *testing.T) {
	assert.Nil(t, As(nil))
}

func TestWithDetailsIsChainable(t *testing.T) {
	err := InvalidInput("missing field").WithDetails("field", "file")
	assert.Equal(t, "file", err.Details["field"])
}
