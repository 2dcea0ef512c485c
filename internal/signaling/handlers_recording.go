package signaling

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/domain"
	"github.com/confplane/signaling-core/internal/recorder"
)

// recording.start/recording.stop are the supplemented, explicit-only
// recording control messages spec.md §9's open question calls for: the
// distilled source's automatic-record-on-produce path is deliberately not
// wired up here. Admin-only, since recording is a sensitive capability the
// source left implicit.
func init() {
	register("recording.start", handleRecordingStart)
	register("recording.stop", handleRecordingStop)
}

func handleRecordingStart(ctx context.Context, s *Session, env envelope) {
	if !s.requireAdmin() {
		return
	}
	if s.deps.Recorder == nil || !s.deps.Recorder.Enabled() {
		s.reply(errMsg("recording not configured"))
		return
	}

	producerID := domain.ProducerID(env.str("producerId"))
	if producerID == "" {
		s.reply(errMsg("missing field: producerId"))
		return
	}

	resp, err := s.deps.Recorder.Start(ctx, recorder.StartRequest{ProducerID: producerID})
	if err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("recording.start failed")
		s.reply(errMsg("recording.start failed"))
		return
	}

	s.reply(map[string]any{
		"type":       "recording.started",
		"producerId": producerID,
		"outputFile": resp.OutputFile,
	})
}

func handleRecordingStop(ctx context.Context, s *Session, env envelope) {
	if !s.requireAdmin() {
		return
	}
	if s.deps.Recorder == nil || !s.deps.Recorder.Enabled() {
		s.reply(errMsg("recording not configured"))
		return
	}

	producerID := domain.ProducerID(env.str("producerId"))
	if producerID == "" {
		s.reply(errMsg("missing field: producerId"))
		return
	}

	if err := s.deps.Recorder.Stop(ctx, producerID); err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("recording.stop failed")
		s.reply(errMsg("recording.stop failed"))
		return
	}

	s.reply(map[string]any{"type": "recording.stopped", "producerId": producerID})
}
