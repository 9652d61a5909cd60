package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/smithy-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, err: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := ContextAttrs(context.Background(), slog.String("run_id", "r-1"))
	ctx = ContextAttrs(ctx, slog.String("image_id", "ami-0123456789abcdef0"))
	logger.With("stage", "migrate").InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "r-1", record["run_id"])
	assert.Equal(t, "ami-0123456789abcdef0", record["image_id"])
	assert.Equal(t, "migrate", record["stage"])
}

func TestContextAttrsDoesNotShareSlices(t *testing.T) {
	base := ContextAttrs(context.Background(), slog.String("run_id", "r-1"))
	a := ContextAttrs(base, slog.String("image_id", "a"))
	b := ContextAttrs(base, slog.String("image_id", "b"))

	assert.Equal(t, "a", a.Value(attrsKey{}).([]slog.Attr)[1].Value.String())
	assert.Equal(t, "b", b.Value(attrsKey{}).([]slog.Attr)[1].Value.String())
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdk.log")
	logger := fileLogger(path)
	logger.Logf(logging.Warn, "retrying %s", "DescribeInstances")
	logger.Logf(logging.Debug, "request sent")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "retrying DescribeInstances")
	assert.Contains(t, lines[0], `"level":"WARN"`)
	assert.Contains(t, lines[1], `"level":"DEBUG"`)
}
