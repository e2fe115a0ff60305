package services_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
)

func requireShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts need a POSIX shell")
	}
}

func testRecording() *queue.Recording {
	return &queue.Recording{ID: 42, SourceURL: "https://media.example/42"}
}

func TestCommandRunnerSuccess(t *testing.T) {
	requireShell(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(0))
	runner := services.NewCommandRunner(cfg.Tools)
	ctx := context.Background()
	rec := testRecording()

	if err := runner.Download(ctx, rec); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := runner.Trim(ctx, rec, profile.Settings{}); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	target := &queue.OutputTarget{Platform: "youtube", Preset: "hd"}
	if err := runner.Upload(ctx, rec, target, profile.Settings{}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestCommandRunnerExitCodeClassification(t *testing.T) {
	requireShell(t)

	cases := []struct {
		exitCode int
		marker   error
	}{
		{3, services.ErrCredential},
		{4, services.ErrNotFound},
		{5, services.ErrRateLimited},
		{1, services.ErrExternalTool},
	}
	for _, tc := range cases {
		cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(tc.exitCode))
		runner := services.NewCommandRunner(cfg.Tools)

		err := runner.Transcribe(context.Background(), testRecording(), profile.Settings{})
		if !errors.Is(err, tc.marker) {
			t.Fatalf("exit %d: err = %v, want %v", tc.exitCode, err, tc.marker)
		}
		if !services.Recognized(err) {
			t.Fatalf("exit %d should be a recognized failure", tc.exitCode)
		}
	}
}

func TestCommandRunnerMissingCommandIsConfigurationError(t *testing.T) {
	runner := services.NewCommandRunner(config.Tools{})

	err := runner.Download(context.Background(), testRecording())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	if services.Retryable(err) {
		t.Fatal("configuration errors must not be retried")
	}
}

func TestStageOperationDispatch(t *testing.T) {
	called := ""
	ops := &services.StubOperations{
		TrimFunc: func(context.Context, *queue.Recording, profile.Settings) error {
			called = "trim"
			return nil
		},
	}

	op := services.StageOperation(ops, queue.StageTrim)
	if op == nil {
		t.Fatal("no operation for trim")
	}
	if err := op(context.Background(), testRecording(), profile.Settings{}); err != nil {
		t.Fatalf("op: %v", err)
	}
	if called != "trim" {
		t.Fatalf("dispatched %q", called)
	}

	if services.StageOperation(ops, queue.StageType("bogus")) != nil {
		t.Fatal("unknown stage should have no operation")
	}
}
