package command

import (
	"sync"

	"go.uber.org/zap"
)

// Handler is the in-process effect bound to a command name. Handlers
// mutate state through the store's mutation surface and nothing else.
type Handler func(cmd Command) error

// Router decouples transport from application behavior: the wire socket,
// the cross-window bus and local shortcuts all drive the same registered
// vocabulary.
type Router struct {
	mut_handlers sync.RWMutex
	handlers     map[string]Handler

	log *zap.Logger
}

// NewRouter builds an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &Router{
		handlers: make(map[string]Handler),
		log:      logger.With(zap.String("component", "CommandRouter")),
	}
}

// Register binds a handler to a command name, replacing any previous
// binding.
func (r *Router) Register(name string, handler Handler) {
	r.mut_handlers.Lock()
	defer r.mut_handlers.Unlock()
	r.handlers[name] = handler
}

// Registered reports whether a handler is bound to name.
func (r *Router) Registered(name string) bool {
	r.mut_handlers.RLock()
	defer r.mut_handlers.RUnlock()
	_, has := r.handlers[name]
	return has
}

// Dispatch invokes the handler registered for the command. A validated
// name with no handler is a configuration bug: it is logged and dropped
// rather than allowed to take down the socket loop.
func (r *Router) Dispatch(cmd Command) {
	r.mut_handlers.RLock()
	handler, has := r.handlers[cmd.Name]
	r.mut_handlers.RUnlock()

	if !has {
		r.log.Warn("No handler registered for validated command", zap.String("command", cmd.Name))
		return
	}

	if err := handler(cmd); err != nil {
		r.log.Error("Command handler failed", zap.String("command", cmd.Name), zap.Error(err))
	}
}
