package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingSend tracks one command that has not yet been delivered.
type PendingSend struct {
	CorrelationID uuid.UUID
	Object        string
	Addr          string
	Attempts      int
	QueuedAt      time.Time
	LastAttemptAt time.Time
	LastError     string
}

// Outbox holds in-flight sends keyed by correlation id.
type Outbox struct {
	mu    sync.RWMutex
	items map[uuid.UUID]PendingSend
}

func NewOutbox() *Outbox {
	return &Outbox{items: make(map[uuid.UUID]PendingSend)}
}

func (o *Outbox) Upsert(item PendingSend) {
	if item.CorrelationID == uuid.Nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[item.CorrelationID] = item
}

func (o *Outbox) MarkAttempt(id uuid.UUID, at time.Time, lastErr error) (PendingSend, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return PendingSend{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.LastError = ""
	if lastErr != nil {
		item.LastError = lastErr.Error()
	}
	o.items[id] = item
	return item, true
}

func (o *Outbox) Remove(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, id)
}

func (o *Outbox) Get(id uuid.UUID) (PendingSend, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[id]
	return item, ok
}

// List returns a snapshot ordered by queue time.
func (o *Outbox) List() []PendingSend {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingSend, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].CorrelationID.String() < out[j].CorrelationID.String()
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}

func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}
