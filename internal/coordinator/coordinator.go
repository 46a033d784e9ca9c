package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dialogd/internal/conversation"
	"dialogd/internal/engine"
	"dialogd/internal/persist"
	"dialogd/internal/window"
)

// State is the lifecycle state of the coordinator.
type State string

const (
	StateReady    State = "ready"
	StateDraining State = "draining"
	StateClosed   State = "closed"
)

// Coordinator owns the engine, its token batch and the conversation store,
// and runs every turn and control operation on one worker goroutine.
type Coordinator struct {
	eng      engine.Engine
	eos      engine.Token
	store    *conversation.Store
	win      *window.Manager
	batch    *engine.Batch
	maxBatch int

	defaults         Params
	maxWait          time.Duration
	fragmentBuffer   int
	maxConversations int
	drainTimeout     time.Duration

	log  zerolog.Logger
	pub  EventPublisher
	sink persist.Sink

	jobs       chan job
	stopping   chan struct{} // closed when Close begins
	quit       chan struct{} // closed to stop the worker once the queue is empty
	workerDone chan struct{}
	admitting  sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*session
	current  string
	// cache is written only by the worker.
	cache     window.CachePosition
	state     State
	inflight  bool
	lastErr   string
	startTime time.Time

	closeOnce sync.Once
	closeErr  error

	turns     atomic.Uint64
	rejected  atomic.Uint64
	cancelled atomic.Uint64
	evictions atomic.Uint64
}

func newCoordinator(cfg Config, capacity, maxBatch int) *Coordinator {
	return &Coordinator{
		eng:              cfg.Engine,
		eos:              cfg.Engine.EOS(),
		store:            cfg.Store,
		win:              window.New(capacity),
		batch:            engine.NewBatch(maxBatch),
		maxBatch:         maxBatch,
		defaults:         cfg.DefaultParams,
		maxWait:          cfg.MaxWait,
		fragmentBuffer:   cfg.FragmentBuffer,
		maxConversations: cfg.MaxConversations,
		drainTimeout:     cfg.DrainTimeout,
		log:              cfg.Logger.With().Str("component", "coordinator").Logger(),
		pub:              cfg.Publisher,
		sink:             cfg.Sink,
		jobs:             make(chan job, cfg.MaxQueueDepth),
		stopping:         make(chan struct{}),
		quit:             make(chan struct{}),
		workerDone:       make(chan struct{}),
		sessions:         make(map[string]*session),
		state:            StateReady,
		startTime:        time.Now(),
	}
}

// Ready reports whether new work is accepted.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady
}

// Store exposes the conversation store for read-only use.
func (c *Coordinator) Store() *conversation.Store { return c.store }

// Defaults returns the params applied to unset session fields.
func (c *Coordinator) Defaults() Params { return c.defaults }

func (c *Coordinator) setCache(p window.CachePosition) {
	c.mu.Lock()
	c.cache = p
	c.mu.Unlock()
}

func (c *Coordinator) setCurrent(id string) {
	c.mu.Lock()
	c.current = id
	c.mu.Unlock()
}

func (c *Coordinator) publish(name string, s *session, conv string, fields map[string]any) {
	ev := Event{Name: name, Conversation: conv, Fields: fields}
	if s != nil {
		ev.SessionID = s.id
	}
	c.pub.Publish(ev)
}
