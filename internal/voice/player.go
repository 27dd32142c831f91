package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/georgedobreff/discord-llm-bot/internal/audio"
	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

var errSendStalled = errors.New("voice: opus send stalled")

// sendTimeout bounds how long one frame may wait on the connection's send
// channel; discordgo drains it at one frame per 20 ms.
const sendTimeout = 2 * time.Second

// OpusPlayer streams WAV files to a voice connection as Opus frames.
type OpusPlayer struct {
	conn    Conn
	onIdle  func()
	onError func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewOpusPlayer matches PlayerFactory.
func NewOpusPlayer(conn Conn, onIdle func(), onError func(error)) Player {
	return &OpusPlayer{conn: conn, onIdle: onIdle, onError: onError}
}

// Play transcodes path up front and streams it in the background. Errors
// before streaming starts are returned; later ones go to onError.
func (p *OpusPlayer) Play(path string) error {
	f, samples, err := audio.ReadWAVFile(path)
	if err != nil {
		return fmt.Errorf("voice: load %s: %w", path, err)
	}
	enc, err := audio.NewEncoder()
	if err != nil {
		return err
	}
	frames, err := enc.EncodeFrames(audio.ToStereo48k(f, samples))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	logging.Debugw("playback started", "path", path, "frames", len(frames))
	go p.stream(ctx, frames)
	return nil
}

func (p *OpusPlayer) stream(ctx context.Context, frames [][]byte) {
	if err := p.conn.Speaking(true); err != nil {
		logging.Debugw("set speaking failed", "err", err)
	}
	send := p.conn.OpusSend()
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	for _, frame := range frames {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sendTimeout)
		select {
		case <-ctx.Done():
			_ = p.conn.Speaking(false)
			return
		case send <- frame:
		case <-timer.C:
			_ = p.conn.Speaking(false)
			p.onError(errSendStalled)
			return
		}
	}
	_ = p.conn.Speaking(false)
	p.onIdle()
}

// Stop abandons the current playback without firing either callback.
func (p *OpusPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
