package coordination

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageBus delivers typed messages to one worker or broadcasts to all
// registered workers, keeping a bounded audit history. Delivery is
// fire-and-forget: unknown recipients and full channels are logged, never
// returned as errors, and nothing is retried.
type MessageBus struct {
	log    *zap.Logger
	buffer int

	mu       sync.RWMutex
	channels map[WorkerID]chan *Message
	closed   bool

	histMu  sync.RWMutex
	history []*Message
	histCap int
}

func NewMessageBus(cfg *Config, log *zap.Logger) *MessageBus {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MessageBus{
		log:      log,
		buffer:   cfg.ChannelBuffer,
		channels: make(map[WorkerID]chan *Message),
		histCap:  cfg.HistoryLimit,
	}
}

// Register allocates the delivery channel for a worker. The caller runs the
// receive loop; the channel is closed by Unregister, which ends that loop.
func (b *MessageBus) Register(id WorkerID) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.channels[id]; exists {
		return nil, ErrWorkerExists
	}
	ch := make(chan *Message, b.buffer)
	b.channels[id] = ch
	return ch, nil
}

// Unregister closes the worker's delivery channel so its receive loop
// terminates instead of leaking.
func (b *MessageBus) Unregister(id WorkerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.channels[id]
	if !exists {
		return ErrWorkerNotFound
	}
	delete(b.channels, id)
	close(ch)
	return nil
}

// Send appends the message to history, then delivers it to the recipient's
// channel, or to every registered channel when To is empty. Always returns
// nil for delivery problems; only a closed bus is an error, and a rejected
// send never reaches the history.
func (b *MessageBus) Send(msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	b.record(msg)

	if msg.To != "" {
		ch, exists := b.channels[msg.To]
		if !exists {
			b.log.Warn("recipient not registered, message dropped",
				zap.String("to", string(msg.To)),
				zap.String("type", string(msg.Type)))
			return nil
		}
		b.deliver(msg.To, ch, msg)
		return nil
	}

	for id, ch := range b.channels {
		b.deliver(id, ch, msg)
	}
	return nil
}

func (b *MessageBus) deliver(id WorkerID, ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
	default:
		b.log.Warn("delivery channel full, message dropped",
			zap.String("to", string(id)),
			zap.String("type", string(msg.Type)))
	}
}

func (b *MessageBus) record(msg *Message) {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.history = append(b.history, msg)
	if len(b.history) > b.histCap {
		b.history = b.history[len(b.history)-b.histCap:]
	}
}

// History returns a copy of the bounded message history, oldest first.
func (b *MessageBus) History() []*Message {
	b.histMu.RLock()
	defer b.histMu.RUnlock()

	out := make([]*Message, len(b.history))
	copy(out, b.history)
	return out
}

// HistoryLen avoids copying when only the count is needed.
func (b *MessageBus) HistoryLen() int {
	b.histMu.RLock()
	defer b.histMu.RUnlock()
	return len(b.history)
}

// Close unregisters every worker and rejects further sends.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.channels {
		close(ch)
		delete(b.channels, id)
	}
}
