package bus

import (
	"sync"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
)

// Message is one decoded telemetry reading together with the topic (or
// subject) it arrived on.
type Message struct {
	Topic    string
	Reading  *sensors.Reading
	Received time.Time
}

// Bus provides fan-out pub/sub semantics for telemetry messages. Each
// Subscribe call gets its own channel that receives every future
// publication. Past messages are not replayed. The implementation is safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Message
	size        int
}

// New creates a Bus whose subscriber channels buffer size messages.
func New(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{size: size}
}

// Subscribe returns a read-only channel that will receive all future
// messages.
func (b *Bus) Subscribe() <-chan Message {
	ch := make(chan Message, b.size)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers m to all subscribers without blocking and returns how
// many received it. A subscriber whose buffer is full misses this message.
func (b *Bus) Publish(m Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- m:
			delivered++
		default:
			continue
		}
	}
	return delivered
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers[i] = b.subscribers[len(b.subscribers)-1]
			b.subscribers = b.subscribers[:len(b.subscribers)-1]
			close(sub)
			return
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
