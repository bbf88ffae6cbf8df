package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/adapters/store/memory"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

// stepClock is a clock tests move forward by hand.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: testStart}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func mockAnyContext() any {
	return mock.Anything
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

type fixture struct {
	engine    *Engine
	clock     *stepClock
	states    *memory.StateStore
	sessions  *memory.SessionRepository
	conflicts *memory.ConflictRepository
	telemetry *memory.TelemetryLog
	rules     *memory.RuleRepository
	caller    domain.Caller
}

func testSettings() Settings {
	return Settings{
		Dimensions: []domain.DimensionID{"ops", "content", "insights"},
		Retry:      RetryPolicy{MaxAttempts: 20, InitialInterval: time.Millisecond},
	}
}

func newFixture(t *testing.T, settings Settings, opts ...Option) *fixture {
	t.Helper()
	return newWrappedFixture(t, settings, nil, opts...)
}

// newWrappedFixture runs the engine on wrap(states) so tests can interleave
// writes. f.states stays the underlying store.
func newWrappedFixture(t *testing.T, settings Settings, wrap func(*memory.StateStore) ports.StateStore, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:     newStepClock(),
		sessions:  memory.NewSessionRepository(),
		conflicts: memory.NewConflictRepository(),
		telemetry: memory.NewTelemetryLog(),
		rules:     memory.NewRuleRepository(),
		caller:    domain.Caller{UserID: "user-1", Tenant: "tenant-a"},
	}
	f.states = memory.NewStateStore(f.clock)
	var states ports.StateStore = f.states
	if wrap != nil {
		states = wrap(f.states)
	}

	opts = append([]Option{WithIDGenerator(sequentialIDs("id"))}, opts...)
	engine, err := NewEngine(Dependencies{
		States:    states,
		Sessions:  f.sessions,
		Conflicts: f.conflicts,
		Metrics:   f.telemetry,
		Alerts:    f.telemetry,
		Events:    f.telemetry,
		Rules:     f.rules,
		Guard:     ports.AllowAll{},
		Clock:     f.clock,
	}, settings, opts...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) session(t *testing.T, cmd CreateSessionCommand) domain.Session {
	t.Helper()
	session, err := ExecuteAs[domain.Session](context.Background(), f.engine, f.caller, cmd)
	require.NoError(t, err)
	return session
}

func (f *fixture) put(t *testing.T, id domain.SessionID, key string, value any) domain.StateEntry {
	t.Helper()
	entry, err := ExecuteAs[domain.StateEntry](context.Background(), f.engine, f.caller, UpdateSessionStateCommand{
		SessionID: id,
		Key:       key,
		Value:     value,
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) stored(t *testing.T, address domain.StateAddress) domain.StateEntry {
	t.Helper()
	entry, err := f.states.Get(context.Background(), address)
	require.NoError(t, err)
	return entry
}
