package jobs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/logger"
)

// Handler executes jobs of a single kind. Domain packages implement this
// interface so the queue infrastructure stays decoupled from what the
// jobs actually do.
type Handler interface {
	// Kind returns the job kind this handler executes. Used for
	// registration and dispatch.
	Kind() Kind

	// Execute runs one job. The payload is the decoded, kind-specific
	// struct for this handler's kind. A nil error with a successful
	// Result completes the job; an error or a failed Result counts as a
	// failed attempt and may trigger a retry.
	//
	// ctx carries the per-job execution deadline. Handlers doing long
	// work should check ctx.Done() and return ctx.Err() when expired.
	Execute(ctx context.Context, payload Payload) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	kind Kind
	fn   func(ctx context.Context, payload Payload) (*Result, error)
}

// NewHandlerFunc wraps a function as a Handler for the given kind.
func NewHandlerFunc(kind Kind, fn func(ctx context.Context, payload Payload) (*Result, error)) *HandlerFunc {
	return &HandlerFunc{kind: kind, fn: fn}
}

func (h *HandlerFunc) Kind() Kind { return h.kind }

func (h *HandlerFunc) Execute(ctx context.Context, payload Payload) (*Result, error) {
	return h.fn(ctx, payload)
}

// Registry manages job handlers by kind.
// Thread-safe for concurrent handler registration and lookup.
type Registry struct {
	handlers map[Kind]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Kind]Handler),
	}
}

// Register adds a handler for its kind.
// Panics if a handler is already registered for that kind: duplicate
// registration is a wiring bug, not a runtime condition.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := handler.Kind()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler already registered for kind: %s", kind))
	}
	r.handlers[kind] = handler
}

// Get retrieves the handler for a kind.
// Returns nil if no handler is registered.
func (r *Registry) Get(kind Kind) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Has checks if a handler is registered for a kind.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[kind]
	return exists
}

// Kinds returns all registered handler kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Dispatcher routes claimed jobs to their handlers: decodes the payload,
// looks up the handler, and contains panics so one bad handler cannot
// take a worker down.
type Dispatcher struct {
	registry *Registry
	log      *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher backed by a handler registry.
func NewDispatcher(registry *Registry, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = logger.Logger
	}
	return &Dispatcher{registry: registry, log: log}
}

// Dispatch executes one job through its registered handler. A missing
// handler or undecodable payload is an execution failure like any other:
// it consumes an attempt and surfaces in the job's error column.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) (result *Result, err error) {
	payload, err := job.DecodePayload()
	if err != nil {
		return nil, err
	}

	handler := d.registry.Get(job.Type)
	if handler == nil {
		return nil, errors.Newf("no handler registered for job kind: %s", job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("Job handler panicked",
				logger.FieldJobID, job.ID,
				logger.FieldJobType, job.Type,
				"panic", r,
			)
			result = nil
			err = errors.Newf("handler for %s panicked: %v", job.Type, r)
		}
	}()

	return handler.Execute(ctx, payload)
}
