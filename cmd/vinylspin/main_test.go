package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vinyl-spinner/internal/pipeline"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestReportRun_LogsEveryStage(t *testing.T) {
	ctx := context.Background()
	runs := pipeline.NewMemoryRepository()

	run := pipeline.NewRunWithID("run-1")
	require.NoError(t, run.Start())
	i := run.BeginStage(pipeline.StageResize)
	run.FinishStage(i, "https://tmp.example/resized.png", "/assets/okcomputer_resized.png")
	i = run.BeginStage(pipeline.StageMask)
	run.FailStage(i, errors.New("decode failed"))
	require.NoError(t, run.Fail("mask: decode failed"))
	require.NoError(t, runs.Save(ctx, run))

	var buf bytes.Buffer
	require.NoError(t, reportRun(ctx, jsonLogger(&buf), runs, "run-1"))

	lines := logLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "stage", lines[0]["msg"])
	assert.Equal(t, "resize", lines[0]["stage"])
	assert.Equal(t, "COMPLETED", lines[0]["status"])
	assert.Equal(t, "https://tmp.example/resized.png", lines[0]["url"])
	assert.Equal(t, "/assets/okcomputer_resized.png", lines[0]["path"])
	assert.Contains(t, lines[0], "duration")

	assert.Equal(t, "mask", lines[1]["stage"])
	assert.Equal(t, "FAILED", lines[1]["status"])
	assert.Equal(t, "decode failed", lines[1]["error"])
	assert.NotContains(t, lines[1], "url")

	assert.Equal(t, "run finished", lines[2]["msg"])
	assert.Equal(t, "FAILED", lines[2]["status"])
	assert.EqualValues(t, 2, lines[2]["stages"])
}

func TestReportRun_UnknownRun(t *testing.T) {
	var buf bytes.Buffer
	err := reportRun(context.Background(), jsonLogger(&buf), pipeline.NewMemoryRepository(), "missing")

	assert.ErrorIs(t, err, pipeline.ErrRunNotFound)
	assert.Zero(t, buf.Len())
}
