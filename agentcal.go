// Package agentcal provides a high-level façade over the calendar negotiation
// engine (event store, per-owner calendars, protocol surface) enabling
// independent, non-cooperating agents to propose, accept, reject, confirm and
// cancel meetings against a shared calendar without double-booking. Most
// applications interact with this package by:
//  1. Creating an AgentCal via New() (optionally overriding the default in-memory store)
//  2. Obtaining a Surface or Tools for one owner identity
//  3. Handing the tools to an LLM runtime or serving them over a transport
//
// There is deliberately no shared global instance: every collaborator is
// constructed here and passed down explicitly, so tests and multi-tenant
// processes can hold isolated engines side by side.
package agentcal

import (
	"sync"
	"time"

	"github.com/hupe1980/agentcal/calendar"
	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/logging"
	"github.com/hupe1980/agentcal/store"
	"github.com/hupe1980/agentcal/surface"
	"github.com/hupe1980/agentcal/tool"
)

// Options configures the AgentCal instance.
type Options struct {
	// Store persists events and preferences (defaults to an in-memory store
	// if not provided). Production deployments typically supply the sqlite
	// store.
	Store core.EventStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// MaxAttempts bounds optimistic-concurrency retries per transition.
	MaxAttempts int

	// PastTolerance is how far in the past a proposal may start before being
	// rejected; zero keeps the calendar default.
	PastTolerance time.Duration

	// Clock injects a time source for tests; nil means time.Now.
	Clock func() time.Time
}

// AgentCal owns the engine's long-lived state: the store handle (process-wide
// lifecycle, opened at startup and closed at shutdown) and one lazily built
// Calendar per owner identity as the unit of isolation.
type AgentCal struct {
	store core.EventStore
	opts  Options

	mu        sync.Mutex
	calendars map[string]*calendar.Calendar
}

// New creates an AgentCal with the provided options.
func New(optFns ...func(o *Options)) *AgentCal {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &AgentCal{
		store:     opts.Store,
		opts:      opts,
		calendars: make(map[string]*calendar.Calendar),
	}
}

// Store returns the event store shared by all calendars of this instance.
func (a *AgentCal) Store() core.EventStore { return a.store }

// Calendar returns the aggregate for the given owner identity, constructing
// it on first use. The same instance is always returned for one owner, which
// is what serializes that owner's transitions.
func (a *AgentCal) Calendar(owner string) *calendar.Calendar {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cal, ok := a.calendars[owner]; ok {
		return cal
	}
	calOpts := []calendar.Option{calendar.WithLogger(a.opts.Logger)}
	if a.opts.MaxAttempts > 0 {
		calOpts = append(calOpts, calendar.WithMaxAttempts(a.opts.MaxAttempts))
	}
	if a.opts.PastTolerance > 0 {
		calOpts = append(calOpts, calendar.WithPastTolerance(a.opts.PastTolerance))
	}
	if a.opts.Clock != nil {
		calOpts = append(calOpts, calendar.WithClock(a.opts.Clock))
	}
	cal := calendar.New(owner, a.store, calOpts...)
	a.calendars[owner] = cal
	return cal
}

// Surface returns the negotiation protocol surface for the given owner.
func (a *AgentCal) Surface(owner string) *surface.Surface {
	return surface.New(a.Calendar(owner), surface.WithLogger(a.opts.Logger))
}

// Tools returns the tool-call surface for the given owner, ready to register
// with an LLM runtime or expose over a transport.
func (a *AgentCal) Tools(owner string) []tool.Tool {
	return surface.Tools(a.Surface(owner))
}
