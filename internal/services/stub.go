package services

import (
	"context"

	"conveyor/internal/profile"
	"conveyor/internal/queue"
)

// StubOperations is a deterministic Operations implementation for tests.
// Unset functions succeed.
type StubOperations struct {
	DownloadFunc          func(context.Context, *queue.Recording) error
	TrimFunc              func(context.Context, *queue.Recording, profile.Settings) error
	TranscribeFunc        func(context.Context, *queue.Recording, profile.Settings) error
	ExtractTopicsFunc     func(context.Context, *queue.Recording, profile.Settings) error
	GenerateSubtitlesFunc func(context.Context, *queue.Recording, profile.Settings) error
	UploadFunc            func(context.Context, *queue.Recording, *queue.OutputTarget, profile.Settings) error
}

func (s *StubOperations) Download(ctx context.Context, rec *queue.Recording) error {
	if s.DownloadFunc == nil {
		return nil
	}
	return s.DownloadFunc(ctx, rec)
}

func (s *StubOperations) Trim(ctx context.Context, rec *queue.Recording, settings profile.Settings) error {
	if s.TrimFunc == nil {
		return nil
	}
	return s.TrimFunc(ctx, rec, settings)
}

func (s *StubOperations) Transcribe(ctx context.Context, rec *queue.Recording, settings profile.Settings) error {
	if s.TranscribeFunc == nil {
		return nil
	}
	return s.TranscribeFunc(ctx, rec, settings)
}

func (s *StubOperations) ExtractTopics(ctx context.Context, rec *queue.Recording, settings profile.Settings) error {
	if s.ExtractTopicsFunc == nil {
		return nil
	}
	return s.ExtractTopicsFunc(ctx, rec, settings)
}

func (s *StubOperations) GenerateSubtitles(ctx context.Context, rec *queue.Recording, settings profile.Settings) error {
	if s.GenerateSubtitlesFunc == nil {
		return nil
	}
	return s.GenerateSubtitlesFunc(ctx, rec, settings)
}

func (s *StubOperations) Upload(ctx context.Context, rec *queue.Recording, target *queue.OutputTarget, settings profile.Settings) error {
	if s.UploadFunc == nil {
		return nil
	}
	return s.UploadFunc(ctx, rec, target, settings)
}
