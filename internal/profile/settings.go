package profile

// PlatformTarget names one upload destination and its preset.
type PlatformTarget struct {
	Platform string
	Preset   string
}

// Settings is the typed view of a resolved profile that the orchestrator
// consumes. Unknown keys in the underlying Value are preserved by the merge
// but ignored here.
type Settings struct {
	TrimEnabled        bool
	TranscribeEnabled  bool
	TopicsEnabled      bool
	SubtitlesEnabled   bool
	AllowErrors        bool
	TranscribeLanguage string
	Targets            []PlatformTarget
}

// DecodeSettings extracts the typed settings from a resolved profile value.
func DecodeSettings(v Value) Settings {
	settings := Settings{
		TrimEnabled:        v.Path("processing", "trim", "enabled").BoolValue(false),
		TranscribeEnabled:  v.Path("processing", "transcription", "enabled").BoolValue(false),
		TopicsEnabled:      v.Path("processing", "topics", "enabled").BoolValue(false),
		SubtitlesEnabled:   v.Path("processing", "subtitles", "enabled").BoolValue(false),
		AllowErrors:        v.Path("processing", "allow_errors").BoolValue(false),
		TranscribeLanguage: v.Path("processing", "transcription", "language").StringValue(""),
	}

	for _, item := range v.Path("output", "targets").ListValue() {
		platform := item.Get("platform").StringValue("")
		if platform == "" {
			continue
		}
		settings.Targets = append(settings.Targets, PlatformTarget{
			Platform: platform,
			Preset:   item.Get("preset").StringValue(""),
		})
	}
	return settings
}

// StageEnabled reports whether the named pipeline stage is enabled. Stage
// names follow the canonical stage-type identifiers.
func (s Settings) StageEnabled(stage string) bool {
	switch stage {
	case "trim":
		return s.TrimEnabled
	case "transcribe":
		return s.TranscribeEnabled
	case "extract_topics":
		return s.TopicsEnabled
	case "generate_subtitles":
		return s.SubtitlesEnabled
	default:
		return false
	}
}

// PlatformMap returns the targets as a platform-to-preset map for output
// reconciliation.
func (s Settings) PlatformMap() map[string]string {
	if len(s.Targets) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Targets))
	for _, target := range s.Targets {
		out[target.Platform] = target.Preset
	}
	return out
}
