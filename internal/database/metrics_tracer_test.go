package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

func TestExtractQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"", "unknown"},
		{"   \n\t", "unknown"},
		{"SELECT 1", "SELECT"},
		{"\n\t\tinsert INTO narratives", "INSERT"},
		{"ping", "PING"},
		{"averyveryveryverylongkeyword", "AVERYVERYVERYVERYLON"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractQueryName(tt.sql), "sql %q", tt.sql)
	}
}

func TestMetricsTracer_CountsErrors(t *testing.T) {
	tracer := &MetricsTracer{}
	before := testutil.ToFloat64(metrics.DBErrorsTotal.WithLabelValues("DELETE"))

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM narratives"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DBErrorsTotal.WithLabelValues("DELETE")))
}

func TestMetricsTracer_IgnoresUntracedContext(t *testing.T) {
	tracer := &MetricsTracer{}
	before := testutil.ToFloat64(metrics.DBErrorsTotal.WithLabelValues("unknown"))

	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, before, testutil.ToFloat64(metrics.DBErrorsTotal.WithLabelValues("unknown")))
}

func TestExtractSSLMode(t *testing.T) {
	assert.Equal(t, "require", extractSSLMode("postgres://u:p@h/db?sslmode=REQUIRE"))
	assert.Equal(t, "prefer (default)", extractSSLMode("postgres://u:p@h/db"))
	assert.Equal(t, "unknown", extractSSLMode("postgres://%zz"))
}
