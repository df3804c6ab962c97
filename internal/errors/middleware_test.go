package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-channel/twitch-alerts/internal/platform/correlation"
)

func serve(t *testing.T, handler echo.HandlerFunc, withCorrelation string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/events/pending", nil)
	if withCorrelation != "" {
		req = req.WithContext(correlation.WithID(req.Context(), withCorrelation))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, Middleware()(handler)(c))
	return rec
}

func TestMiddleware_StructuredError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec := serve(t, func(echo.Context) error {
		return ValidationError("limit must be a positive integer")
	}, "abcd1234")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit must be a positive integer", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "abcd1234", resp.CorrelationID)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec := serve(t, func(echo.Context) error {
		return errors.New("connection reset by peer")
	}, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("internal")))
}

func TestMiddleware_NoError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec := serve(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, testutil.CollectAndCount(HTTPErrorsTotal))
}

func TestMiddleware_EchoHTTPErrorPassesThrough(t *testing.T) {
	HTTPErrorsTotal.Reset()

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := Middleware()(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	})(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("rate_limited")))
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		code    int
		message any
		typ     ErrorType
		want    string
	}{
		{http.StatusBadRequest, "bad", TypeValidation, "bad"},
		{http.StatusNotFound, nil, TypeNotFound, "Not Found"},
		{http.StatusMethodNotAllowed, nil, TypeNotFound, "Method Not Allowed"},
		{http.StatusTooManyRequests, "slow", TypeRateLimited, "slow"},
		{http.StatusServiceUnavailable, 42, TypeUnavailable, "Service Unavailable"},
		{http.StatusTeapot, "", TypeInternal, "I'm a teapot"},
	}

	for _, tt := range tests {
		got := WrapHTTPError(&echo.HTTPError{Code: tt.code, Message: tt.message})
		assert.Equal(t, tt.typ, got.Type, "code %d", tt.code)
		assert.Equal(t, tt.want, got.Message, "code %d", tt.code)
	}
}

func TestWrapHTTPError_KeepsInternalCause(t *testing.T) {
	cause := errors.New("store failure")
	got := WrapHTTPError(echo.NewHTTPError(http.StatusInternalServerError).SetInternal(cause))
	assert.ErrorIs(t, got, cause)
}
