package canopy

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	logger.LogBuild(ctx, 1000, 100, time.Second, nil)
	assert.Contains(t, buf.String(), "build complete")
	assert.Contains(t, buf.String(), `"items":1000`)

	buf.Reset()
	logger.LogBuild(ctx, 0, 100, time.Second, errors.New("boom"))
	assert.Contains(t, buf.String(), "build failed")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	logger.LogSearch(ctx, 10, 500, time.Millisecond, nil)
	assert.Contains(t, buf.String(), "search complete")

	buf.Reset()
	logger.LogPublish(ctx, "products", 3, time.Second, nil)
	assert.Contains(t, buf.String(), "publish complete")
	assert.Contains(t, buf.String(), `"version":3`)
}

func TestLogger_SearchSuccessIsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Per-query success logs stay below Info so serving traffic does not
	// flood the log.
	logger.LogSearch(context.Background(), 10, 500, time.Millisecond, nil)
	assert.Empty(t, buf.String())

	logger.LogSearch(context.Background(), 10, 500, time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), "search failed")
}

func TestNoopLogger(t *testing.T) {
	logger := NoopLogger()
	assert.NotNil(t, logger)
	logger.LogBuild(context.Background(), 1, 1, time.Second, nil)
}
