package voice

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/llm"
)

type fakeConn struct {
	guild, channel string
	packets        chan *discordgo.Packet
	send           chan []byte

	mu          sync.Mutex
	ready       bool
	onSpeaking  func(string, uint32)
	disconnects int
}

func newFakeConn(guild, channel string, ready bool) *fakeConn {
	return &fakeConn{
		guild:   guild,
		channel: channel,
		ready:   ready,
		packets: make(chan *discordgo.Packet, 64),
		send:    make(chan []byte, 64),
	}
}

func (c *fakeConn) GuildID() string                   { return c.guild }
func (c *fakeConn) ChannelID() string                 { return c.channel }
func (c *fakeConn) Packets() <-chan *discordgo.Packet { return c.packets }
func (c *fakeConn) OpusSend() chan<- []byte           { return c.send }
func (c *fakeConn) Speaking(bool) error               { return nil }

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeConn) setReady(v bool) {
	c.mu.Lock()
	c.ready = v
	c.mu.Unlock()
}

func (c *fakeConn) OnSpeaking(fn func(string, uint32)) {
	c.mu.Lock()
	c.onSpeaking = fn
	c.mu.Unlock()
}

func (c *fakeConn) announce(userID string, ssrc uint32) {
	c.mu.Lock()
	fn := c.onSpeaking
	c.mu.Unlock()
	fn(userID, ssrc)
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// fakePlayer records Play calls; tests end a playback with finish.
type fakePlayer struct {
	onIdle  func()
	onError func(error)

	mu    sync.Mutex
	plays []string
	stops int
}

func (p *fakePlayer) Play(path string) error {
	p.mu.Lock()
	p.plays = append(p.plays, path)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

func (p *fakePlayer) finish() { p.onIdle() }

type stereoDecoder struct{ err error }

// Decode yields one 20 ms stereo frame of constant signal.
func (d stereoDecoder) Decode([]byte) ([]int16, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]int16, 960*2)
	for i := range out {
		out[i] = 500
	}
	return out, nil
}

type staticResolver map[string]Speaker

func (r staticResolver) Resolve(_, userID string) (Speaker, bool) {
	sp, ok := r[userID]
	return sp, ok
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) { return f.text, f.err }

// countingTranscriber counts finished transcriptions so tests can wait for
// an utterance to get past speech-to-text.
type countingTranscriber struct {
	inner Transcriber

	mu sync.Mutex
	n  int
}

func (c *countingTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	text, err := c.inner.Transcribe(ctx, path)
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return text, err
}

func (c *countingTranscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeDecider struct {
	yes bool
	err error

	mu    sync.Mutex
	calls []string
	turns [][]llm.Turn
}

func (f *fakeDecider) ShouldRespond(_ context.Context, history []llm.Turn, speaker, utterance string) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, speaker+": "+utterance)
	f.turns = append(f.turns, history)
	f.mu.Unlock()
	return f.yes, f.err
}

type fakeReplier struct {
	reply string

	mu    sync.Mutex
	calls int
}

func (f *fakeReplier) Reply(context.Context, []llm.Turn, string, string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.reply, nil
}

func (f *fakeReplier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errSynth = errors.New("synth boom")

type fakeSynth struct {
	fail map[string]bool

	mu    sync.Mutex
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.fail[text] {
		return errSynth
	}
	return nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type harness struct {
	deps     Deps
	player   *fakePlayer
	decider  *fakeDecider
	replier  *fakeReplier
	synth    *fakeSynth
	stt      *countingTranscriber
	history  *HistoryStore
	dataRoot string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	dirs := NewDirs(root)
	if err := dirs.Ensure(); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		player:   &fakePlayer{},
		decider:  &fakeDecider{yes: true},
		replier:  &fakeReplier{reply: "Doing *giggles* great, thanks for asking!"},
		synth:    &fakeSynth{fail: map[string]bool{}},
		history:  NewHistoryStore(dirs.History),
		dataRoot: root,
	}
	h.deps = Deps{
		BotName: "Lilly",
		Resolver: staticResolver{
			"u1":  {ID: "u1", Username: "ana", DisplayName: "Ana"},
			"u2":  {ID: "u2", Username: "ben", DisplayName: "Ben"},
			"bot": {ID: "bot", Username: "otherbot", DisplayName: "Other", Bot: true},
		},
		Transcriber: fakeTranscriber{text: " Hey Lilly, how's it going?"},
		Decider:     h.decider,
		Replier:     h.replier,
		Synthesizer: h.synth,
		History:     h.history,
		Dirs:        dirs,
		NewDecoder:  func() (FrameDecoder, error) { return stereoDecoder{}, nil },
		NewPlayer: func(_ Conn, onIdle func(), onError func(error)) Player {
			h.player.onIdle, h.player.onError = onIdle, onError
			return h.player
		},
		Timing: Timing{
			JoinTimeout:     time.Second,
			RecoveryTimeout: 100 * time.Millisecond,
			PollInterval:    5 * time.Millisecond,
			Silence:         40 * time.Millisecond,
			MaxUtterance:    2 * time.Second,
		},
	}
	return h
}

func (h *harness) start(t *testing.T, conn *fakeConn) *Session {
	t.Helper()
	h.stt = &countingTranscriber{inner: h.deps.Transcriber}
	deps := h.deps
	deps.Transcriber = h.stt
	s := NewSession(conn, deps, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		s.Destroy()
		s.Wait()
	})
	return s
}

func (h *harness) historyPath(userID string) string {
	return filepath.Join(h.deps.Dirs.History, userID+".json")
}

// speak pushes n Opus packets for ssrc onto the connection.
func speak(conn *fakeConn, ssrc uint32, n int) {
	for i := 0; i < n; i++ {
		conn.packets <- &discordgo.Packet{SSRC: ssrc, Opus: []byte{0x78, byte(i)}}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// transcribedAndClear reports once n utterances were transcribed and no
// user holds a lock.
func (h *harness) transcribedAndClear(s *Session, n int) func() bool {
	return func() bool { return h.stt.count() >= n && locksClear(s)() }
}

func locksClear(s *Session) func() bool {
	return func() bool {
		st := s.Status()
		return len(st.Recording) == 0 && len(st.Processing) == 0
	}
}
