package main

import (
	"fmt"
	"sync"

	"github.com/hibiken/asynq"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
	"conveyor/internal/stagesync"
)

// commandContext lazily wires the store and orchestrator so light commands
// (help, config init) never touch the database or Redis.
type commandContext struct {
	configFlag *string

	mu     sync.Mutex
	cfg    *config.Config
	store  *queue.Store
	client *asynq.Client
	orch   *pipeline.Orchestrator
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return *c.configFlag
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConfigLocked()
}

func (c *commandContext) ensureConfigLocked() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureStore() (*queue.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfigLocked()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) ensureOrchestrator() (*pipeline.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orch != nil {
		return c.orch, nil
	}
	cfg, err := c.ensureConfigLocked()
	if err != nil {
		return nil, err
	}
	if c.store == nil {
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open queue store: %w", err)
		}
		c.store = store
	}
	c.client = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	tracker := stagesync.NewTracker(c.store, logging.NewNop())
	c.orch = pipeline.NewOrchestrator(c.store, c.client, tracker, cfg, logging.NewNop())
	return c.orch, nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
