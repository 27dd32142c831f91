package voice

import (
	"time"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

// playNext pops the next queued reply and synthesizes it. It does nothing
// while something is already playing, so every trigger may call it freely.
func (s *Session) playNext() {
	s.mu.Lock()
	if s.isPlaying || len(s.queue) == 0 || s.player == nil || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.isPlaying = true
	text := s.queue[0]
	s.queue = s.queue[1:]
	n := len(s.queue)
	s.wg.Add(1)
	s.mu.Unlock()

	s.deps.Metrics.SetQueueLength(n)
	go func() {
		defer s.wg.Done()
		s.speak(text)
	}()
}

func (s *Session) speak(text string) {
	path := s.deps.Dirs.TTSPath(s.id)
	start := time.Now()
	err := s.deps.Synthesizer.Synthesize(s.ctx, text, path)
	s.deps.Metrics.ObserveStage("synthesize", time.Since(start))
	if err != nil {
		logging.Errorw("speech synthesis failed, skipping reply", "session_id", s.id, "err", err)
		s.finishPlayback()
		return
	}
	if s.State() == StateDestroyed {
		return
	}
	if err := s.player.Play(path); err != nil {
		logging.Errorw("starting playback failed", "session_id", s.id, "path", path, "err", err)
		s.finishPlayback()
	}
}

// finishPlayback marks the player idle and moves on to the next reply.
func (s *Session) finishPlayback() {
	s.mu.Lock()
	s.isPlaying = false
	s.mu.Unlock()
	s.playNext()
}

func (s *Session) onPlayerIdle() { s.finishPlayback() }

func (s *Session) onPlayerError(err error) {
	logging.Warnw("audio player error", "session_id", s.id, "err", err)
	s.finishPlayback()
}
