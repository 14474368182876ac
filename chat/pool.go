package chat

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Broadcaster delivers outbound chat notifications. Implementations drop
// messages silently once their transport has stopped.
type Broadcaster interface {
	BroadcastJSON(payload string)
}

// Timeout after which an unanswered entry expires.
const Timeout = 30 * time.Second

// DefaultGrowThreshold is the active share of the slot vector at or above
// which Add doubles the pool; growth is only considered once no free slot
// is left.
const DefaultGrowThreshold = 0.7

// entry is one chat message slot. A slot in the free ring has id 0.
type entry struct {
	id        uint64
	subsystem string
	message   string
	timestamp time.Time
	answered  bool
	expired   bool
}

// notification is the JSON document broadcast to chat clients.
type notification struct {
	Type string `json:"type"`
	ID   uint64 `json:"id"`
	Text string `json:"text"`
}

// MessagePool correlates ad-hoc chat requests with their asynchronous
// replies. Ids are monotonic, never zero, and never reused within the
// process lifetime. All operations hold the pool-wide mutex and are
// therefore linearizable.
type MessagePool struct {
	mu            sync.Mutex
	entries       []entry
	freeIndices   []int
	nextID        uint64
	activeCount   int
	growThreshold float64
	broadcaster   Broadcaster
	now           func() time.Time
	log           *zap.SugaredLogger
}

// NewMessagePool builds a pool with the given initial slot count.
func NewMessagePool(initialSize int, growThreshold float64, b Broadcaster, log *zap.SugaredLogger) *MessagePool {
	if initialSize < 1 {
		initialSize = 1
	}
	if growThreshold <= 0 || growThreshold > 1 {
		growThreshold = DefaultGrowThreshold
	}
	p := &MessagePool{
		entries:       make([]entry, initialSize),
		nextID:        1,
		growThreshold: growThreshold,
		broadcaster:   b,
		now:           time.Now,
		log:           log,
	}
	for i := 0; i < initialSize; i++ {
		p.freeIndices = append(p.freeIndices, i)
	}
	log.Infow("chat message pool initialized", "entries", initialSize)
	return p
}

// Add allocates a slot for a new chat message and returns its id.
func (p *MessagePool) Add(subsystem, message string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeIndices) == 0 {
		if float64(p.activeCount)/float64(len(p.entries)) >= p.growThreshold {
			p.grow()
		}
	}

	index := 0
	if len(p.freeIndices) > 0 {
		index = p.freeIndices[0]
		p.freeIndices = p.freeIndices[1:]
	}

	id := p.nextID
	p.nextID++

	p.entries[index] = entry{
		id:        id,
		subsystem: subsystem,
		message:   message,
		timestamp: p.now(),
	}
	p.activeCount++
	return id
}

func (p *MessagePool) grow() {
	oldSize := len(p.entries)
	grown := make([]entry, oldSize*2)
	copy(grown, p.entries)
	p.entries = grown
	for i := oldSize; i < len(p.entries); i++ {
		p.freeIndices = append(p.freeIndices, i)
	}
	p.log.Infow("chat message pool expanded", "from", oldSize, "to", len(p.entries))
}

// MarkAnswered resolves the entry with the given id and broadcasts the
// answer. An unknown or already-expired id is broadcast as a late answer.
func (p *MessagePool) MarkAnswered(id uint64, answerText string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		e := &p.entries[i]
		if e.id == id && !e.expired && !e.answered {
			e.answered = true
			p.broadcast(notification{Type: "output", ID: id, Text: answerText})

			p.entries[i] = entry{}
			p.freeIndices = append(p.freeIndices, i)
			p.activeCount--
			return
		}
	}

	p.log.Warnw("late answer received for expired chat message", "id", id)
	p.broadcast(notification{Type: "late-answer", ID: id, Text: answerText})
}

// ExpireOld reclaims every unanswered entry older than the timeout,
// broadcasting a timeout notification for each.
func (p *MessagePool) ExpireOld() {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		e := &p.entries[i]
		if e.id != 0 && !e.answered && now.Sub(e.timestamp) > Timeout {
			p.log.Warnw("chat message expired", "id", e.id)
			p.broadcast(notification{Type: "timeout", ID: e.id, Text: "Message expired after 30 seconds."})

			p.entries[i] = entry{}
			p.freeIndices = append(p.freeIndices, i)
			p.activeCount--
		}
	}
}

// ActiveCount reports the number of in-use slots.
func (p *MessagePool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeCount
}

func (p *MessagePool) broadcast(n notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.log.Errorw("failed to marshal chat notification", "error", err)
		return
	}
	p.broadcaster.BroadcastJSON(string(payload))
}
