package pipeline

import (
	"context"

	"conveyor/internal/config"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/template"
)

// Resolver produces a recording's effective settings from the layered
// configuration sources. Resolution is pure apart from template binding:
// when a recording has no bound template and one matches, the match is
// recorded on the in-memory recording for the caller to persist.
type Resolver struct {
	store *queue.Store
	cfg   *config.Config
}

// NewResolver constructs a Resolver.
func NewResolver(store *queue.Store, cfg *config.Config) *Resolver {
	return &Resolver{store: store, cfg: cfg}
}

// Resolve merges, lowest precedence first: system defaults, the tenant's
// user config, the bound or matched template's config, the recording's
// persisted overrides, and the runtime override for this invocation.
func (r *Resolver) Resolve(ctx context.Context, rec *queue.Recording, runtimeOverride map[string]any) (profile.Value, profile.Settings, error) {
	user, err := r.userLayer(ctx, rec.TenantID)
	if err != nil {
		return profile.Null(), profile.Settings{}, err
	}

	tpl, err := r.templateFor(ctx, rec)
	if err != nil {
		return profile.Null(), profile.Settings{}, err
	}
	templateLayer := profile.Null()
	if tpl != nil {
		templateLayer, err = profile.ParseJSON(tpl.ConfigJSON)
		if err != nil {
			return profile.Null(), profile.Settings{}, services.Wrap(services.ErrConfiguration, "", "resolve",
				"template config is not valid JSON", err)
		}
		if rec.TemplateID == nil {
			id := tpl.ID
			rec.TemplateID = &id
		}
	}

	recordingLayer := profile.Null()
	if rec.OverridesJSON != "" {
		recordingLayer, err = profile.ParseJSON(rec.OverridesJSON)
		if err != nil {
			return profile.Null(), profile.Settings{}, services.Wrap(services.ErrConfiguration, "", "resolve",
				"recording overrides are not valid JSON", err)
		}
	}

	runtimeLayer := profile.Null()
	if len(runtimeOverride) > 0 {
		runtimeLayer, err = profile.FromAny(runtimeOverride)
		if err != nil {
			return profile.Null(), profile.Settings{}, services.Wrap(services.ErrValidation, "", "resolve",
				"runtime override is not representable", err)
		}
	}

	resolved := profile.Resolve(user, templateLayer, recordingLayer, runtimeLayer)
	return resolved, profile.DecodeSettings(resolved), nil
}

// userLayer merges the process-wide defaults with the tenant's stored config.
func (r *Resolver) userLayer(ctx context.Context, tenantID string) (profile.Value, error) {
	defaults := profile.Null()
	if len(r.cfg.Defaults) > 0 {
		var err error
		defaults, err = profile.FromAny(r.cfg.Defaults)
		if err != nil {
			return profile.Null(), services.Wrap(services.ErrConfiguration, "", "resolve",
				"system defaults are not representable", err)
		}
	}

	stored, err := r.store.UserConfig(ctx, tenantID)
	if err != nil {
		return profile.Null(), err
	}
	if stored == "" {
		return defaults, nil
	}
	user, err := profile.ParseJSON(stored)
	if err != nil {
		return profile.Null(), services.Wrap(services.ErrConfiguration, "", "resolve",
			"tenant config is not valid JSON", err)
	}
	return profile.Merge(defaults, user), nil
}

// templateFor returns the recording's bound template, or the first matching
// one when nothing is bound. A dangling template reference resolves to nil
// rather than an error because template deletion is outside this subsystem.
func (r *Resolver) templateFor(ctx context.Context, rec *queue.Recording) (*queue.Template, error) {
	if rec.TemplateID != nil {
		tpl, err := r.store.GetTemplate(ctx, *rec.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl != nil {
			return tpl, nil
		}
	}

	templates, err := r.store.Templates(ctx)
	if err != nil {
		return nil, err
	}
	return template.Match(rec, templates), nil
}
