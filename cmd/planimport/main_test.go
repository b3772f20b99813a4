package main

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFinish_LogsBeforeExitCode(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	if code := finish(logger, errors.New("listen tcp :20262: bind: address already in use")); code != 1 {
		t.Fatalf("want exit code 1 got=%d", code)
	}
	entries := logs.FilterMessage("server exited").All()
	if len(entries) != 1 || entries[0].ContextMap()["error"] == nil {
		t.Fatalf("want one logged exit error, got=%+v", logs.All())
	}

	if code := finish(logger, nil); code != 0 {
		t.Fatalf("want exit code 0 got=%d", code)
	}
	if logs.Len() != 1 {
		t.Fatalf("clean exit must not log an error, got=%d entries", logs.Len())
	}
}
