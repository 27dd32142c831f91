package voice

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

// silenceFrame is what Discord clients send when they stop transmitting.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

const subscriptionBuffer = 256

// receiver demultiplexes the connection's Opus stream by speaker. It turns
// "first packet after a quiet gap" into a speaking-start callback and fans
// packets out to whoever subscribed to that user.
//
// onStart runs on the packet loop and must not block. Until the callback's
// owner calls Subscribe or Discard, the user's frames are held as pending so
// the packet that woke it is not lost.
type receiver struct {
	silence time.Duration
	onStart func(userID string)
	now     func() time.Time

	mu       sync.Mutex
	users    map[uint32]string
	lastSeen map[uint32]time.Time
	subs     map[string]chan []byte
	pending  map[string][][]byte
	closed   bool
}

func newReceiver(silence time.Duration, onStart func(userID string)) *receiver {
	return &receiver{
		silence:  silence,
		onStart:  onStart,
		now:      time.Now,
		users:    make(map[uint32]string),
		lastSeen: make(map[uint32]time.Time),
		subs:     make(map[string]chan []byte),
		pending:  make(map[string][][]byte),
	}
}

// MapSSRC records which user an SSRC belongs to.
func (r *receiver) MapSSRC(userID string, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev := r.users[ssrc]; prev != userID {
		logging.Debugw("mapped ssrc to user", "ssrc", ssrc, "user_id", userID)
	}
	r.users[ssrc] = userID
}

// Run consumes packets until ctx is done or the channel closes.
func (r *receiver) Run(ctx context.Context, packets <-chan *discordgo.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			r.handle(pkt)
		}
	}
}

func (r *receiver) handle(pkt *discordgo.Packet) {
	if pkt == nil || len(pkt.Opus) == 0 || bytes.Equal(pkt.Opus, silenceFrame) {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	userID := r.users[pkt.SSRC]
	if userID == "" {
		r.mu.Unlock()
		return
	}
	now := r.now()
	last, seen := r.lastSeen[pkt.SSRC]
	r.lastSeen[pkt.SSRC] = now
	_, subscribed := r.subs[userID]
	_, waiting := r.pending[userID]
	started := !subscribed && !waiting && (!seen || now.Sub(last) >= r.silence) && r.onStart != nil
	if started {
		r.pending[userID] = nil
	}
	r.mu.Unlock()

	if started {
		r.onStart(userID)
	}
	r.forward(userID, pkt.Opus)
}

func (r *receiver) forward(userID string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame = append([]byte(nil), frame...)
	if held, ok := r.pending[userID]; ok {
		if len(held) < subscriptionBuffer {
			r.pending[userID] = append(held, frame)
		}
		return
	}
	ch, ok := r.subs[userID]
	if !ok {
		return
	}
	select {
	case ch <- frame:
	default:
		logging.Warnw("dropping opus frame; capture is behind", "user_id", userID)
	}
}

// Subscribe opens a frame stream for userID, starting with any frames held
// since the speaking start. Any previous stream for the same user is closed.
func (r *receiver) Subscribe(userID string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.subs[userID]; ok {
		close(old)
	}
	ch := make(chan []byte, subscriptionBuffer)
	held := r.pending[userID]
	delete(r.pending, userID)
	if r.closed {
		close(ch)
		return ch
	}
	for _, f := range held {
		ch <- f
	}
	r.subs[userID] = ch
	return ch
}

// Discard drops frames held for a speaking start nobody is going to record.
func (r *receiver) Discard(userID string) {
	r.mu.Lock()
	delete(r.pending, userID)
	r.mu.Unlock()
}

// Unsubscribe ends userID's stream. Safe to call more than once. The user's
// next packet counts as a new speaking start, so a packet that slipped in
// after the capture stopped reading does not swallow the next utterance.
func (r *receiver) Unsubscribe(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[userID]; ok {
		close(ch)
		delete(r.subs, userID)
	}
	for ssrc, id := range r.users {
		if id == userID {
			delete(r.lastSeen, ssrc)
		}
	}
}

// Close ends every stream and ignores later packets.
func (r *receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	clear(r.pending)
}
