// Package sync keeps the entity store consistent with the remote store.
//
// Local edits are applied optimistically and written to the remote through a
// single FIFO write queue. Change-feed events are merged without regressing
// fields that a recent optimistic write still covers. A periodic full reload
// corrects whatever the feed missed.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nhle/workera/internal/entity"
	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/localstate"
	"github.com/nhle/workera/internal/remote"
)

const tracerName = "github.com/nhle/workera/internal/sync"

var (
	// ErrNotFound is returned when a mutation targets an entity that is not
	// loaded.
	ErrNotFound = errors.New("sync: entity not found")

	// ErrInvalidInput is returned for malformed mutation input.
	ErrInvalidInput = errors.New("sync: invalid input")

	// ErrBootstrap wraps failures of the first-login bootstrap.
	ErrBootstrap = errors.New("sync: bootstrap failed")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("sync: engine closed")
)

// Defaults applied to a zero Config.
const (
	DefaultGraceWindow  = 3 * time.Second
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 30 * time.Second
)

// LocalState persists the last active workspace and board.
type LocalState interface {
	Load() (localstate.State, error)
	Save(localstate.State) error
}

// Config configures an Engine.
type Config struct {
	// UserID is the signed-in user.
	UserID string

	// GraceWindow is how long an optimistic write shadows feed updates.
	GraceWindow time.Duration

	// ReloadInterval is the period of the fallback full reload. Zero
	// disables the timer.
	ReloadInterval time.Duration

	// QueueSize is the capacity of the write queue.
	QueueSize int

	// WriteTimeout bounds a single remote write.
	WriteTimeout time.Duration

	// Feed opens the change-feed subscription of a workspace session. Nil
	// runs on reloads only.
	Feed feed.Source

	// State persists the last active selection. Nil disables it.
	State LocalState

	Logger log.FieldLogger
	Tracer trace.Tracer

	// Now is the wall clock used for optimistic timestamps.
	Now func() time.Time
}

// Engine is one client session on top of an entity store.
type Engine struct {
	remote       remote.Remote
	store        *entity.Store
	source       feed.Source
	state        LocalState
	userID       string
	interval     time.Duration
	writeTimeout time.Duration
	logger       log.FieldLogger
	tracer       trace.Tracer
	now          func() time.Time

	optimistic *optimisticLog
	queue      chan write
	trigger    chan string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        gosync.WaitGroup
	closeOnce gosync.Once

	mu          gosync.Mutex
	workspaceID string
	boardID     string
	sub         feed.Subscription
	subCancel   context.CancelFunc

	// loadedWorkspace is the workspace whose boards the last reload loaded.
	loadedWorkspace string

	reloadMu gosync.Mutex
	inflight map[string]*reloadCall
	status   Status
}

// New starts an engine writing to r. The write worker and the reload timer
// run until Close.
func New(r remote.Remote, cfg Config) *Engine {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		remote:       r,
		store:        entity.New(),
		source:       cfg.Feed,
		state:        cfg.State,
		userID:       cfg.UserID,
		interval:     cfg.ReloadInterval,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger.WithField("user", cfg.UserID),
		tracer:       cfg.Tracer,
		now:          cfg.Now,
		optimistic:   newOptimisticLog(cfg.GraceWindow),
		queue:        make(chan write, cfg.QueueSize),
		trigger:      make(chan string, 16),
		ctx:          ctx,
		cancel:       cancel,
		inflight:     make(map[string]*reloadCall),
	}

	e.wg.Add(2)
	go e.runWrites()
	go e.runReloads()
	return e
}

// Store returns the entity store the engine maintains.
func (e *Engine) Store() *entity.Store {
	return e.store
}

// UserID returns the signed-in user.
func (e *Engine) UserID() string {
	return e.userID
}

// Changes subscribes to entity changes. The returned function unsubscribes.
func (e *Engine) Changes(buffer int) (<-chan entity.Change, func()) {
	return e.store.Subscribe(buffer)
}

// Close detaches the session, drains queued writes and stops the workers.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.detach()
		ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
		defer cancel()
		if ferr := e.Flush(ctx); ferr != nil {
			err = fmt.Errorf("flushing writes: %w", ferr)
		}
		e.cancel()
		e.wg.Wait()
	})
	return err
}

func (e *Engine) closed() bool {
	return e.ctx.Err() != nil
}
