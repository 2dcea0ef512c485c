package engine

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Worker owns one *webrtc.API (its own MediaEngine + SettingEngine) and
// processes jobs submitted to it — in practice, the pion calls that build
// and connect transports, producers and consumers for its rooms.
// Rooms are bound to a worker round-robin by the Adapter; everything that
// room subsequently does (transports, producers, consumers) runs through
// that worker's API instance, mirroring mediasoup's one-worker-process-per-
// router model.
//
// A worker's goroutine dying is the explicit failure policy spec.md §4.3
// calls out: in-memory engine state cannot be reconstructed, so the process
// must exit non-zero rather than limp along with a partially dead worker.
type Worker struct {
	id   int
	api  *webrtc.API
	jobs chan func()
}

func newWorker(id int, se webrtc.SettingEngine) (*Worker, error) {
	me := &webrtc.MediaEngine{}
	if err := registerCodecs(me); err != nil {
		return nil, err
	}

	w := &Worker{
		id:   id,
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
		jobs: make(chan func(), 64),
	}
	go w.run()
	return w, nil
}

func (w *Worker) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Fatal().
				Str("module", "engine.worker").
				Int("worker", w.id).
				Interface("panic", r).
				Msg("worker crashed, exiting process")
		}
	}()

	for job := range w.jobs {
		job()
	}
}

func (w *Worker) submit(job func()) {
	w.jobs <- job
}
