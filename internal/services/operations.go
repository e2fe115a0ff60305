package services

import (
	"context"

	"conveyor/internal/profile"
	"conveyor/internal/queue"
)

// Operations is the boundary to the external media tooling. Each method maps
// to one opaque stage call; implementations report failure through the
// sentinel-tagged errors in this package and never mutate pipeline state.
type Operations interface {
	Download(ctx context.Context, rec *queue.Recording) error
	Trim(ctx context.Context, rec *queue.Recording, settings profile.Settings) error
	Transcribe(ctx context.Context, rec *queue.Recording, settings profile.Settings) error
	ExtractTopics(ctx context.Context, rec *queue.Recording, settings profile.Settings) error
	GenerateSubtitles(ctx context.Context, rec *queue.Recording, settings profile.Settings) error
	Upload(ctx context.Context, rec *queue.Recording, target *queue.OutputTarget, settings profile.Settings) error
}

// StageOperation dispatches the stage-typed operation for a recording.
func StageOperation(ops Operations, stage queue.StageType) func(context.Context, *queue.Recording, profile.Settings) error {
	switch stage {
	case queue.StageTrim:
		return ops.Trim
	case queue.StageTranscribe:
		return ops.Transcribe
	case queue.StageExtractTopics:
		return ops.ExtractTopics
	case queue.StageGenerateSubtitles:
		return ops.GenerateSubtitles
	default:
		return nil
	}
}
