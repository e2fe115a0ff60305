package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"conveyor/internal/config"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
)

// commandContext is swappable in tests.
var commandContext = exec.CommandContext

// Exit codes external tools use to signal recognized failure categories.
// Anything else non-zero is treated as a generic external tool error.
const (
	exitCredential  = 3
	exitNotFound    = 4
	exitRateLimited = 5
)

// CommandRunner implements Operations by shelling out to the commands
// configured under [tools]. Each command receives the recording source
// reference and, for uploads, the platform name as trailing arguments.
type CommandRunner struct {
	tools config.Tools
}

// NewCommandRunner builds an Operations implementation from tool config.
func NewCommandRunner(tools config.Tools) *CommandRunner {
	return &CommandRunner{tools: tools}
}

func (r *CommandRunner) Download(ctx context.Context, rec *queue.Recording) error {
	return r.run(ctx, "download", r.tools.DownloadCommand, rec.SourceURL)
}

func (r *CommandRunner) Trim(ctx context.Context, rec *queue.Recording, _ profile.Settings) error {
	return r.run(ctx, "trim", r.tools.TrimCommand, recordingRef(rec))
}

func (r *CommandRunner) Transcribe(ctx context.Context, rec *queue.Recording, settings profile.Settings) error {
	args := []string{recordingRef(rec)}
	if lang := strings.TrimSpace(settings.TranscribeLanguage); lang != "" {
		args = append([]string{"--language", lang}, args...)
	}
	return r.run(ctx, "transcribe", r.tools.TranscribeCommand, args...)
}

func (r *CommandRunner) ExtractTopics(ctx context.Context, rec *queue.Recording, _ profile.Settings) error {
	return r.run(ctx, "extract_topics", r.tools.TopicsCommand, recordingRef(rec))
}

func (r *CommandRunner) GenerateSubtitles(ctx context.Context, rec *queue.Recording, _ profile.Settings) error {
	return r.run(ctx, "generate_subtitles", r.tools.SubtitlesCommand, recordingRef(rec))
}

func (r *CommandRunner) Upload(ctx context.Context, rec *queue.Recording, target *queue.OutputTarget, _ profile.Settings) error {
	args := []string{"--platform", target.Platform}
	if preset := strings.TrimSpace(target.Preset); preset != "" {
		args = append(args, "--preset", preset)
	}
	args = append(args, recordingRef(rec))
	return r.run(ctx, "upload", r.tools.UploadCommand, args...)
}

func (r *CommandRunner) run(ctx context.Context, operation, command string, args ...string) error {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return Wrap(ErrConfiguration, operation, "run", "no command configured", nil)
	}

	argv := append(fields[1:], args...)
	cmd := commandContext(ctx, fields[0], argv...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return Wrap(ErrTransient, operation, "run", "interrupted", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "exit " + strconv.Itoa(exitErr.ExitCode())
		}
		return Wrap(markerForExitCode(exitErr.ExitCode()), operation, fields[0], detail, nil)
	}
	return Wrap(ErrExternalTool, operation, fields[0], "start command", err)
}

func markerForExitCode(code int) error {
	switch code {
	case exitCredential:
		return ErrCredential
	case exitNotFound:
		return ErrNotFound
	case exitRateLimited:
		return ErrRateLimited
	default:
		return ErrExternalTool
	}
}

func recordingRef(rec *queue.Recording) string {
	if rec == nil {
		return ""
	}
	return fmt.Sprintf("recording-%d", rec.ID)
}
