package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
	"github.com/georgedobreff/discord-llm-bot/internal/metrics"
	"github.com/georgedobreff/discord-llm-bot/llm"
)

// Speaker is a resolved guild member.
type Speaker struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

// SpeakerResolver looks up who a user id belongs to. ok is false when the
// user cannot be found.
type SpeakerResolver interface {
	Resolve(guildID, userID string) (sp Speaker, ok bool)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type Decider interface {
	ShouldRespond(ctx context.Context, history []llm.Turn, speaker, utterance string) (bool, error)
}

type Replier interface {
	Reply(ctx context.Context, history []llm.Turn, speaker, utterance string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, path string) error
}

// Player plays one file at a time on a connection. Play returns once playback
// has started; completion is reported through the callbacks the player was
// built with.
type Player interface {
	Play(path string) error
	Stop()
}

type (
	PlayerFactory  func(conn Conn, onIdle func(), onError func(error)) Player
	DecoderFactory func() (FrameDecoder, error)
)

// Timing holds the session's time bounds.
type Timing struct {
	JoinTimeout     time.Duration
	RecoveryTimeout time.Duration
	// PollInterval is how often connection readiness is sampled.
	PollInterval time.Duration
	Silence      time.Duration
	MaxUtterance time.Duration
}

// DefaultTiming mirrors the configuration defaults.
func DefaultTiming() Timing {
	return Timing{
		JoinTimeout:     30 * time.Second,
		RecoveryTimeout: 5 * time.Second,
		PollInterval:    250 * time.Millisecond,
		Silence:         750 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
	}
}

// MinCaptureBytes is the smallest recording worth transcribing. Shorter
// clips are clicks and breaths that Whisper turns into noise phrases.
const MinCaptureBytes = 12 * 1024

// Deps are the collaborators shared by every session.
type Deps struct {
	BotName     string
	Resolver    SpeakerResolver
	Transcriber Transcriber
	Decider     Decider
	Replier     Replier
	Synthesizer Synthesizer
	History     *HistoryStore
	Dirs        Dirs
	NewDecoder  DecoderFactory
	NewPlayer   PlayerFactory
	Metrics     *metrics.Metrics
	Timing      Timing
	// HistoryWindow limits how many past entries go into prompts; 0 sends all.
	HistoryWindow   int
	MinCaptureBytes int64
}

// Session owns everything tied to one voice connection: the playback queue,
// the per-user locks and the player. It is single use; once destroyed a new
// Session must be built.
type Session struct {
	id     string
	conn   Conn
	deps   Deps
	player Player
	recv   *receiver

	ctx    context.Context
	cancel context.CancelFunc

	recovered   chan struct{}
	onDestroyed func(*Session)
	destroyOnce sync.Once
	wg          sync.WaitGroup

	mu         sync.Mutex
	state      State
	queue      []string
	isPlaying  bool
	recording  map[string]bool
	processing map[string]bool
}

// NewSession builds a session in the Connecting state with its player
// attached to conn. onDestroyed, if set, runs once after teardown.
func NewSession(conn Conn, deps Deps, onDestroyed func(*Session)) *Session {
	if deps.Timing == (Timing{}) {
		deps.Timing = DefaultTiming()
	}
	if deps.Timing.PollInterval <= 0 {
		deps.Timing.PollInterval = DefaultTiming().PollInterval
	}
	if deps.MinCaptureBytes == 0 {
		deps.MinCaptureBytes = MinCaptureBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.NewString(),
		conn:        conn,
		deps:        deps,
		ctx:         ctx,
		cancel:      cancel,
		recovered:   make(chan struct{}, 1),
		onDestroyed: onDestroyed,
		state:       StateConnecting,
		recording:   make(map[string]bool),
		processing:  make(map[string]bool),
	}
	s.recv = newReceiver(deps.Timing.Silence, s.speakingStarted)
	if deps.NewPlayer != nil {
		s.player = deps.NewPlayer(conn, s.onPlayerIdle, s.onPlayerError)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) logFields() []interface{} {
	return []interface{}{"session_id", s.id, "guild_id", s.conn.GuildID(), "channel_id", s.conn.ChannelID()}
}

// Start waits for the connection to become ready, then begins listening.
// On timeout the session is destroyed and ErrJoinTimeout returned.
func (s *Session) Start(ctx context.Context) error {
	if err := s.waitReady(ctx, s.deps.Timing.JoinTimeout); err != nil {
		logging.Warnw("voice connection never became ready", append(s.logFields(), "err", err)...)
		s.Destroy()
		return err
	}

	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return ErrSessionDestroyed
	}
	s.state = StateReady
	s.wg.Add(2)
	s.mu.Unlock()

	s.conn.OnSpeaking(s.recv.MapSSRC)
	go func() {
		defer s.wg.Done()
		s.recv.Run(s.ctx, s.conn.Packets())
	}()
	go func() {
		defer s.wg.Done()
		s.monitor()
	}()
	logging.Infow("voice session ready", s.logFields()...)
	return nil
}

func (s *Session) waitReady(ctx context.Context, timeout time.Duration) error {
	if s.conn.Ready() {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	tick := time.NewTicker(s.deps.Timing.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrSessionDestroyed
		case <-timer.C:
			return fmt.Errorf("%w (%s)", ErrJoinTimeout, timeout)
		case <-tick.C:
			if s.conn.Ready() {
				return nil
			}
		}
	}
}

// monitor watches for the transport dropping and gives it a bounded window
// to come back before tearing the session down.
func (s *Session) monitor() {
	tick := time.NewTicker(s.deps.Timing.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
			if s.conn.Ready() {
				continue
			}
			if !s.transition(StateReady, StateDisconnected) {
				continue
			}
			logging.Warnw("voice connection lost, waiting for recovery", append(s.logFields(), "timeout", s.deps.Timing.RecoveryTimeout)...)
			if !s.awaitRecovery() {
				logging.Warnw("voice connection did not recover, destroying session", s.logFields()...)
				s.Destroy()
				return
			}
			s.transition(StateDisconnected, StateReady)
			logging.Infow("voice connection recovered", s.logFields()...)
		}
	}
}

// awaitRecovery races the transport reconnecting against an explicit
// recovery signal from the gateway, both bounded by RecoveryTimeout.
func (s *Session) awaitRecovery() bool {
	select {
	case <-s.recovered:
	default:
	}
	timer := time.NewTimer(s.deps.Timing.RecoveryTimeout)
	defer timer.Stop()
	tick := time.NewTicker(s.deps.Timing.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-timer.C:
			return false
		case <-s.recovered:
			return true
		case <-tick.C:
			if s.conn.Ready() {
				return true
			}
		}
	}
}

// SignalRecovery tells a disconnected session the gateway still has the bot
// in a voice channel.
func (s *Session) SignalRecovery() {
	select {
	case s.recovered <- struct{}{}:
	default:
	}
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// speakingStarted runs on the packet loop. Resolving the speaker can hit the
// REST API, so the decision happens on its own goroutine while the receiver
// holds the user's frames.
func (s *Session) speakingStarted(userID string) {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		s.recv.Discard(userID)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		s.HandleSpeakingStart(userID)
	}()
}

// HandleSpeakingStart begins a capture for userID unless the user is a bot,
// unknown, or already being recorded or answered. It reports whether a
// capture started.
func (s *Session) HandleSpeakingStart(userID string) bool {
	if !s.acceptSpeaker(userID) {
		s.recv.Discard(userID)
		return false
	}
	return true
}

func (s *Session) acceptSpeaker(userID string) bool {
	s.mu.Lock()
	busy := s.recording[userID] || s.processing[userID]
	live := s.state == StateReady
	s.mu.Unlock()
	if !live {
		return false
	}
	if busy {
		s.deps.Metrics.Utterance(metrics.OutcomeDroppedLocked)
		logging.Debugw("already handling this speaker, ignoring", "user_id", userID, "session_id", s.id)
		return false
	}

	sp, ok := s.resolve(userID)
	if !ok || sp.Bot {
		return false
	}

	s.mu.Lock()
	if s.state != StateReady || s.recording[userID] || s.processing[userID] {
		s.mu.Unlock()
		return false
	}
	s.recording[userID] = true
	s.processing[userID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	frames := s.recv.Subscribe(userID)
	s.deps.Metrics.Utterance(metrics.OutcomeAccepted)
	logging.Infow("speaker started, recording", logging.UserFields(sp.ID, sp.DisplayName)...)

	go s.runUtterance(sp, frames)
	return true
}

func (s *Session) resolve(userID string) (Speaker, bool) {
	if s.deps.Resolver == nil {
		return Speaker{}, false
	}
	return s.deps.Resolver.Resolve(s.conn.GuildID(), userID)
}

func (s *Session) runUtterance(sp Speaker, frames <-chan []byte) {
	defer s.wg.Done()
	defer s.release(sp.ID, s.processing)
	defer func() {
		if r := recover(); r != nil {
			s.deps.Metrics.Utterance(metrics.OutcomeFailed)
			logging.Errorw("panic in utterance pipeline", "user_id", sp.ID, "panic", r)
		}
	}()

	ctx := logging.WithFields(s.ctx, append(logging.UserFields(sp.ID, sp.DisplayName),
		"session_id", s.id, "correlation_id", uuid.NewString())...)

	res, err := s.capture(ctx, sp.ID, frames)
	if err != nil {
		s.deps.Metrics.Utterance(metrics.OutcomeFailed)
		logging.WarnwCtx(ctx, "capture failed", "err", err)
		return
	}
	s.processUtterance(ctx, sp, res)
}

// capture records one utterance. The recording lock is released whatever
// the outcome.
func (s *Session) capture(ctx context.Context, userID string, frames <-chan []byte) (CaptureResult, error) {
	defer s.release(userID, s.recording)
	defer s.recv.Unsubscribe(userID)

	start := time.Now()
	if s.deps.NewDecoder == nil {
		return CaptureResult{}, fmt.Errorf("%w: no decoder", ErrCaptureFailed)
	}
	dec, err := s.deps.NewDecoder()
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	res, err := Capture(ctx, frames, dec, s.deps.Dirs.SpeechPath(userID), CaptureOptions{
		Silence:     s.deps.Timing.Silence,
		MaxDuration: s.deps.Timing.MaxUtterance,
	})
	s.deps.Metrics.ObserveStage("capture", time.Since(start))
	if err == nil {
		logging.DebugwCtx(ctx, "recording finished", "frames", res.Frames, "duration", res.Duration, "bytes", res.Bytes)
	}
	return res, err
}

func (s *Session) release(userID string, locks map[string]bool) {
	s.mu.Lock()
	delete(locks, userID)
	s.mu.Unlock()
}

// Destroy tears the session down. It is idempotent and safe from any
// goroutine, including the session's own.
func (s *Session) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.state = StateDestroyed
		s.queue = nil
		s.isPlaying = false
		clear(s.recording)
		clear(s.processing)
		s.mu.Unlock()

		s.cancel()
		if s.player != nil {
			s.player.Stop()
		}
		s.recv.Close()
		if err := s.conn.Disconnect(); err != nil {
			logging.Debugw("voice disconnect failed", append(s.logFields(), "err", err)...)
		}
		if err := os.Remove(s.deps.Dirs.TTSPath(s.id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Debugw("removing session tts file failed", "session_id", s.id, "err", err)
		}
		s.deps.Metrics.SetQueueLength(0)
		logging.Infow("voice session destroyed", s.logFields()...)
		if s.onDestroyed != nil {
			s.onDestroyed(s)
		}
	})
}

// Wait blocks until the session's goroutines have exited.
func (s *Session) Wait() { s.wg.Wait() }

// Status is a point-in-time view of a session.
type Status struct {
	SessionID  string   `json:"session_id"`
	GuildID    string   `json:"guild_id"`
	ChannelID  string   `json:"channel_id"`
	State      State    `json:"state"`
	QueueLen   int      `json:"queue_length"`
	IsPlaying  bool     `json:"is_playing"`
	Recording  []string `json:"recording"`
	Processing []string `json:"processing"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionID:  s.id,
		GuildID:    s.conn.GuildID(),
		ChannelID:  s.conn.ChannelID(),
		State:      s.state,
		QueueLen:   len(s.queue),
		IsPlaying:  s.isPlaying,
		Recording:  lockedUsers(s.recording),
		Processing: lockedUsers(s.processing),
	}
}

func lockedUsers(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for id, held := range m {
		if held {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
