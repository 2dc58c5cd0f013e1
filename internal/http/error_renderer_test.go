package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/wanderplan/planner-api/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: apperrors.NotFound("gone"), wantStatus: http.StatusNotFound},
		{name: "forbidden", err: apperrors.Forbidden("nope"), wantStatus: http.StatusForbidden},
		{name: "conflict", err: apperrors.Conflict("dup"), wantStatus: http.StatusConflict},
		{name: "validation", err: apperrors.Validation("bad"), wantStatus: http.StatusBadRequest},
		{name: "internal", err: apperrors.Internal("boom", errors.New("cause")), wantStatus: http.StatusInternalServerError},
		{name: "plain error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RenderError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRenderErrorHidesInternalCauses(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, apperrors.Internal("query failed", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestRecovererConvertsPanics(t *testing.T) {
	handler := Recoverer(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
