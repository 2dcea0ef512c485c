package engine

import "github.com/confplane/signaling-core/internal/core"

// eventBus fans lifecycle events out to subscribers registered via
// MediaEngine.Subscribe. There is exactly one subscriber in practice (the
// Fan-out & Event Bridge, wired once at startup) but the adapter does not
// assume that.
type eventBus struct {
	fns []func(core.Event)
}

func (b *eventBus) subscribe(fn func(core.Event)) {
	b.fns = append(b.fns, fn)
}

// emit must never be called while holding a roomRouter or transport lock:
// subscriber functions may call back into the registries.
func (b *eventBus) emit(ev core.Event) {
	for _, fn := range b.fns {
		fn(ev)
	}
}
