package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatgate/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubPruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (p *stubPruner) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.deleted, p.err
}

type stubStats struct{}

func (stubStats) Stats() dispatch.Stats { return dispatch.Stats{} }

func TestPruneMessages(t *testing.T) {
	pruner := &stubPruner{deleted: 4}
	assert.EqualValues(t, 4, PruneMessages(pruner, 30, zap.NewNop()))
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), pruner.cutoff, time.Minute)

	pruner = &stubPruner{err: errors.New("db down")}
	assert.Zero(t, PruneMessages(pruner, 30, zap.NewNop()))
}

func TestCronCleaner_RegistersJobs(t *testing.T) {
	c, err := CronCleaner(&stubPruner{}, 7, stubStats{}, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)

	c2, err := CronCleaner(&stubPruner{}, 0, stubStats{}, zap.NewNop())
	require.NoError(t, err)
	defer c2.Stop()
	assert.Len(t, c2.Entries(), 1)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
