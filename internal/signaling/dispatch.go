package signaling

import "context"

type handlerFunc func(ctx context.Context, s *Session, env envelope)

// handlers maps every recognized message type (spec.md §6) to its handler.
// Populated by init() in each handlers_*.go file so additions stay local to
// the file that implements them.
var handlers = map[string]handlerFunc{}

func register(msgType string, fn handlerFunc) {
	if _, exists := handlers[msgType]; exists {
		panic("signaling: duplicate handler for " + msgType)
	}
	handlers[msgType] = fn
}
