package coordinator

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"dialogd/internal/conversation"
	"dialogd/internal/engine"
	"dialogd/internal/persist"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultMaxWait        = 30 * time.Second
	defaultFragmentBuffer = 16
	defaultDrainTimeout   = 10 * time.Second
)

// Config encapsulates all tunables for Coordinator construction.
type Config struct {
	// Engine is owned by the coordinator from New until Close.
	Engine engine.Engine
	// Store defaults to an empty in-memory store.
	Store *conversation.Store

	MaxQueueDepth  int
	MaxWait        time.Duration
	FragmentBuffer int
	// MaxConversations bounds the store; 0 means unlimited.
	MaxConversations int
	DrainTimeout     time.Duration
	// DefaultParams fill unset per-session params. Zero means DefaultParams().
	DefaultParams Params

	Logger    zerolog.Logger
	Publisher EventPublisher
	// Sink receives Persist snapshots; nil disables persistence.
	Sink persist.Sink
}

// New constructs a Coordinator and starts its worker.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("coordinator: engine is required")
	}
	capacity := cfg.Engine.CacheCapacity()
	if capacity <= 0 {
		return nil, errors.New("coordinator: engine reports no cache capacity")
	}
	maxBatch := cfg.Engine.MaxBatchSize()
	if maxBatch <= 0 || maxBatch > capacity {
		maxBatch = capacity
	}
	if cfg.Store == nil {
		cfg.Store = conversation.NewStore()
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.FragmentBuffer <= 0 {
		cfg.FragmentBuffer = defaultFragmentBuffer
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.DefaultParams == (Params{}) {
		cfg.DefaultParams = DefaultParams()
	}
	if err := cfg.DefaultParams.Validate(); err != nil {
		return nil, err
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	c := newCoordinator(cfg, capacity, maxBatch)
	go c.work()
	return c, nil
}
