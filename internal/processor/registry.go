package processor

import (
	"promptbank/internal/model"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type HandlerRegistry interface {
	Register(Handler)
	Get(model.OperationType) (Handler, bool)
	AvailableHandlers() []model.OperationType
}

// Registry maps operation types to their handlers
type Registry struct {
	handlers map[model.OperationType]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a handler registry
func NewRegistry(handlers ...Handler) HandlerRegistry {
	registry := Registry{
		handlers: make(map[model.OperationType]Handler),
	}

	for _, handler := range handlers {
		registry.Register(handler)
	}

	return &registry
}

// Register adds a handler, replacing any previous one for the same type
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler

	log.Debug().
		Str("operationType", string(handler.Type())).
		Str("handler", handler.Name()).
		Msg("Registered bulk operation handler")
}

// Get retrieves the handler for an operation type
func (r *Registry) Get(opType model.OperationType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[opType]
	return handler, exists
}

// AvailableHandlers returns the registered operation types, sorted
func (r *Registry) AvailableHandlers() []model.OperationType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.OperationType, 0, len(r.handlers))
	for opType := range r.handlers {
		types = append(types, opType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
