package router

import (
	"sync"

	"github.com/vovakirdan/meshchat/internal/proto"
)

// Outbox holds commands waiting for a locally connected user. They are
// handed to the user on its next request to this server.
type Outbox struct {
	mu    sync.Mutex
	queue map[string][]proto.Command
	limit int
}

// NewOutbox creates an outbox keeping at most limit pending commands per
// user. The oldest commands are discarded first. A limit <= 0 means no
// limit.
func NewOutbox(limit int) *Outbox {
	return &Outbox{queue: make(map[string][]proto.Command), limit: limit}
}

// Push queues cmd for nickname. It reports false if an older command was
// discarded to make room.
func (o *Outbox) Push(nickname string, cmd proto.Command) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := append(o.queue[nickname], cmd)
	kept := true
	if o.limit > 0 && len(q) > o.limit {
		q = q[len(q)-o.limit:]
		kept = false
	}
	o.queue[nickname] = q
	return kept
}

// Drain removes and returns every command queued for nickname, oldest first.
func (o *Outbox) Drain(nickname string) []proto.Command {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queue[nickname]
	delete(o.queue, nickname)
	return q
}

// Pending reports the number of commands queued for nickname.
func (o *Outbox) Pending(nickname string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue[nickname])
}
