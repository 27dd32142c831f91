package voice

import (
	"context"
	"strings"
	"time"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
	"github.com/georgedobreff/discord-llm-bot/internal/metrics"
)

// processUtterance runs transcribe, filter, decide, reply and enqueue for a
// finished recording. Every failure ends the utterance silently; the caller
// releases the processing lock.
func (s *Session) processUtterance(ctx context.Context, sp Speaker, res CaptureResult) {
	m := s.deps.Metrics
	if res.Bytes < s.deps.MinCaptureBytes {
		m.Utterance(metrics.OutcomeFiltered)
		logging.DebugwCtx(ctx, "recording too short, ignoring", "bytes", res.Bytes)
		return
	}

	start := time.Now()
	transcript, err := s.deps.Transcriber.Transcribe(ctx, res.Path)
	m.ObserveStage("transcribe", time.Since(start))
	if err != nil {
		m.Utterance(metrics.OutcomeFailed)
		logging.WarnwCtx(ctx, "transcription failed", "err", err)
		return
	}
	logging.InfowCtx(ctx, "transcribed", "text", transcript)
	if IsNoise(transcript) {
		m.Utterance(metrics.OutcomeFiltered)
		logging.DebugwCtx(ctx, "empty or noise transcript, ignoring")
		return
	}

	entries, err := s.deps.History.Load(sp.ID)
	if err != nil {
		logging.WarnwCtx(ctx, "voice history unreadable, starting fresh", "err", err)
		entries = []Entry{}
	}
	entries = append(entries, Entry{UserID: sp.ID, DisplayName: sp.DisplayName, Text: transcript})
	turns := Turns(entries, s.deps.HistoryWindow)

	start = time.Now()
	respond, err := s.deps.Decider.ShouldRespond(ctx, turns, sp.DisplayName, transcript)
	m.ObserveStage("decide", time.Since(start))
	if err != nil {
		m.Utterance(metrics.OutcomeFailed)
		logging.WarnwCtx(ctx, "response decision failed", "err", err)
		return
	}
	if !respond {
		m.Utterance(metrics.OutcomeNoReply)
		logging.InfowCtx(ctx, "no response needed")
		return
	}

	start = time.Now()
	reply, err := s.deps.Replier.Reply(ctx, turns, sp.DisplayName, transcript)
	m.ObserveStage("reply", time.Since(start))
	if err != nil {
		m.Utterance(metrics.OutcomeFailed)
		logging.WarnwCtx(ctx, "reply generation failed", "err", err)
		return
	}
	logging.InfowCtx(ctx, "replying", "text", reply)

	// history is written before synthesis so the turn survives a TTS failure
	entries = append(entries, Entry{UserID: BotSpeakerID, DisplayName: s.deps.BotName, Text: reply})
	if err := s.deps.History.Save(sp.ID, entries); err != nil {
		m.Utterance(metrics.OutcomeFailed)
		logging.ErrorwCtx(ctx, "saving voice history failed", "err", err)
		return
	}

	m.Utterance(metrics.OutcomeReplied)
	if err := s.Enqueue(reply); err != nil {
		logging.DebugwCtx(ctx, "reply not queued", "err", err)
	}
}

// Enqueue cleans text and appends it to the playback queue, starting playback
// when idle. Text that cleans down to nothing is dropped.
func (s *Session) Enqueue(text string) error {
	text = strings.TrimSpace(CleanReply(text))
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return ErrSessionDestroyed
	}
	s.queue = append(s.queue, text)
	n := len(s.queue)
	s.mu.Unlock()

	s.deps.Metrics.SetQueueLength(n)
	s.playNext()
	return nil
}
