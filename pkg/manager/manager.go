// Package manager owns the slot lifecycle: the participant registry, the
// key-value store and the single active slot pointer, and drives Save and
// Load through an aggregator and a storage backend.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/jllopis/slotsave/pkg/aggregate"
	"github.com/jllopis/slotsave/pkg/config"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/kv"
	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/state"
	"github.com/jllopis/slotsave/pkg/storage"
	"github.com/jllopis/slotsave/pkg/telemetry"
)

// Clock returns the current time.
type Clock func() time.Time

// SceneProvider reports the scene index recorded in slot metadata.
type SceneProvider func() int

// Manager is the context object behind every slot operation. All mutation of
// the registry, the active pointer and the key-value store goes through it.
type Manager struct {
	mu sync.Mutex

	cfg      config.Save
	store    storage.Storage
	registry *state.Registry
	values   *kv.Store
	agg      *aggregate.Aggregator

	active      *slot.Metadata
	activeSince time.Time

	clock   Clock
	scene   SceneProvider
	logger  *slog.Logger
	metrics *telemetry.SlotMetrics
	tracer  trace.Tracer

	listeners listeners
}

// Option configures a Manager instance.
type Option func(*Manager) error

// New creates a manager for the slots described by cfg, persisted in store.
func New(cfg config.Save, store storage.Storage, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("manager: storage is required")
	}
	if !strings.HasPrefix(cfg.Extension, ".") || len(cfg.Extension) < 2 {
		return nil, saveerrors.New(saveerrors.CodeInvalidInput, "slot extension must start with '.'", nil).
			WithContext("extension", cfg.Extension)
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		clock:  time.Now,
		scene:  func() int { return 0 },
		logger: slog.Default(),
		tracer: otel.Tracer("slotsave/manager"),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.registry == nil {
		m.registry = state.NewRegistry()
	}
	if m.values == nil {
		m.values = kv.New()
	}
	if m.metrics == nil {
		if sm, err := telemetry.NewSlotMetrics(context.Background()); err == nil {
			m.metrics = sm
		}
	}
	m.logger = telemetry.DebugGate(m.logger, cfg.Debug).With("component", "slotsave")
	m.agg = aggregate.New(m.registry, m.values, cfg.Extension)
	return m, nil
}

// WithLogger sets the logger. Records below error level are only emitted
// when the save configuration has debug enabled.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithRegistry shares an existing participant registry.
func WithRegistry(r *state.Registry) Option {
	return func(m *Manager) error {
		m.registry = r
		return nil
	}
}

// WithKeyValueStore shares an existing key-value store.
func WithKeyValueStore(s *kv.Store) Option {
	return func(m *Manager) error {
		m.values = s
		return nil
	}
}

// WithClock overrides the time source used for creation dates and time played.
func WithClock(c Clock) Option {
	return func(m *Manager) error {
		if c == nil {
			return errors.New("manager: clock is nil")
		}
		m.clock = c
		return nil
	}
}

// WithSceneProvider sets the source of the current scene index.
func WithSceneProvider(p SceneProvider) Option {
	return func(m *Manager) error {
		if p == nil {
			return errors.New("manager: scene provider is nil")
		}
		m.scene = p
		return nil
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(sm *telemetry.SlotMetrics) Option {
	return func(m *Manager) error {
		m.metrics = sm
		return nil
	}
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) error {
		if t != nil {
			m.tracer = t
		}
		return nil
	}
}

// Registry returns the participant registry.
func (m *Manager) Registry() *state.Registry { return m.registry }

// KV returns the key-value store scoped to the active slot.
func (m *Manager) KV() *kv.Store { return m.values }

// Config returns the save configuration the manager was built with.
func (m *Manager) Config() config.Save { return m.cfg }

// Subscribe registers fn for slot events and returns a func that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	return m.listeners.add(fn)
}

// Register adds a participant to the registry.
func (m *Manager) Register(p *state.Participant) {
	if p == nil {
		return
	}
	m.registry.Register(p)
	m.metrics.RecordParticipants(context.Background(), m.registry.Len())
	m.logger.Debug("participant registered", "participant", p.ID(), "name", p.Name())
}

// Unregister removes a participant. Removing an unknown participant is a no-op.
func (m *Manager) Unregister(p *state.Participant) {
	if p == nil {
		return
	}
	if m.registry.Unregister(p) {
		m.metrics.RecordParticipants(context.Background(), m.registry.Len())
		m.logger.Debug("participant removed", "participant", p.ID(), "name", p.Name())
	}
}

// ActiveSlot returns a copy of the active slot's metadata.
func (m *Manager) ActiveSlot() (slot.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return slot.Metadata{}, false
	}
	return *m.active, true
}

func (m *Manager) metaKey(name string) string {
	return slot.FileName(name, m.cfg.Extension)
}

func (m *Manager) newEvent(t EventType, name string) Event {
	return Event{Type: t, Slot: name, Timestamp: m.clock().UTC()}
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return m.tracer.Start(ctx, name)
}

// fail records err on the span and the error counter and returns it.
func (m *Manager) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.metrics.RecordError(ctx, op, err)
	return err
}

// normalizeName validates a slot name and returns its NFC form, so names
// typed with composed or decomposed accents map to the same slot file.
func normalizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", saveerrors.New(saveerrors.CodeInvalidInput, "slot name is required", nil)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", saveerrors.New(saveerrors.CodeInvalidInput, "slot name must not contain path separators", nil).
			WithContext("slot", name)
	}
	return norm.NFC.String(name), nil
}
