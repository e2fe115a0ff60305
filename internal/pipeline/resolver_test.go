package pipeline

import (
	"context"
	"testing"

	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestResolvePrecedence(t *testing.T) {
	_, _, store, cfg := newOrchestrator(t)
	resolver := NewResolver(store, cfg)
	ctx := context.Background()

	if err := store.SetUserConfig(ctx, "tenant-1",
		`{"processing":{"transcription":{"language":"de"},"topics":{"enabled":false}}}`); err != nil {
		t.Fatalf("SetUserConfig: %v", err)
	}
	tpl, err := store.CreateTemplate(ctx, &queue.Template{
		Name:       "standups",
		IsActive:   true,
		Keywords:   []string{"standup"},
		ConfigJSON: `{"processing":{"topics":{"enabled":true},"subtitles":{"enabled":false}}}`,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	rec := testsupport.NewRecording(t, store, "tenant-1", "Weekly Standup")
	rec.OverridesJSON = `{"processing":{"subtitles":{"enabled":true}}}`

	resolved, settings, err := resolver.Resolve(ctx, rec, map[string]any{
		"processing": map[string]any{"trim": map[string]any{"enabled": false}},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// System default survives where no layer overrides it.
	if !settings.TranscribeEnabled {
		t.Fatal("transcription lost the system default")
	}
	// Tenant config overrides the defaults but loses to the template.
	if settings.TranscribeLanguage != "de" {
		t.Fatalf("language = %q, want tenant value", settings.TranscribeLanguage)
	}
	if !settings.TopicsEnabled {
		t.Fatal("template should re-enable topics over tenant config")
	}
	// Recording override beats the template.
	if !settings.SubtitlesEnabled {
		t.Fatal("recording override should re-enable subtitles")
	}
	// Runtime override beats everything.
	if settings.TrimEnabled {
		t.Fatal("runtime override should disable trim")
	}
	// Sibling keys of an overridden map survive the deep merge.
	if got := resolved.Path("output", "targets").ListValue(); len(got) != 1 {
		t.Fatalf("output targets lost in merge: %v", got)
	}

	if rec.TemplateID == nil || *rec.TemplateID != tpl.ID {
		t.Fatalf("TemplateID = %v, want matched template %d", rec.TemplateID, tpl.ID)
	}
}

func TestResolveKeepsBoundTemplate(t *testing.T) {
	_, _, store, cfg := newOrchestrator(t)
	resolver := NewResolver(store, cfg)
	ctx := context.Background()

	bound, err := store.CreateTemplate(ctx, &queue.Template{
		Name:       "bound",
		IsActive:   true,
		ConfigJSON: `{"processing":{"trim":{"enabled":false}}}`,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if _, err := store.CreateTemplate(ctx, &queue.Template{
		Name:       "matcher-bait",
		IsActive:   true,
		Keywords:   []string{"standup"},
		ConfigJSON: `{"processing":{"trim":{"enabled":true}}}`,
	}); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	rec := testsupport.NewRecording(t, store, "tenant-1", "Weekly Standup")
	rec.TemplateID = &bound.ID

	_, settings, err := resolver.Resolve(ctx, rec, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if settings.TrimEnabled {
		t.Fatal("bound template must win over a matching one")
	}
}

func TestResolveDanglingTemplateFallsBackToMatch(t *testing.T) {
	_, _, store, cfg := newOrchestrator(t)
	resolver := NewResolver(store, cfg)
	ctx := context.Background()

	rec := testsupport.NewRecording(t, store, "tenant-1", "Weekly Standup")
	missing := int64(9999)
	rec.TemplateID = &missing

	_, settings, err := resolver.Resolve(ctx, rec, nil)
	if err != nil {
		t.Fatalf("Resolve with dangling template: %v", err)
	}
	// Defaults still apply; the dangling reference is not an error.
	if !settings.TrimEnabled {
		t.Fatal("system defaults lost")
	}
}
