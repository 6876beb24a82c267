package workqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryBroker is a process-local Broker. It backs tests and single-process runs.
type MemoryBroker struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	seq    int64
	log    []memEntry
	groups map[string]*memGroup
}

type memEntry struct {
	handle Handle
	item   Item
}

type memGroup struct {
	next    int
	pending map[Handle]memPending
}

type memPending struct {
	seq       int64
	item      Item
	consumer  string
	claimedAt time.Time
}

func NewMemoryBroker(clock clockwork.Clock) *MemoryBroker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryBroker{clock: clock, groups: make(map[string]*memGroup)}
}

func (b *MemoryBroker) Publish(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(item)
	return nil
}

func (b *MemoryBroker) publishLocked(item Item) {
	b.seq++
	item.Handle = ""
	b.log = append(b.log, memEntry{handle: Handle(fmt.Sprintf("%d-0", b.seq)), item: item})
}

func (b *MemoryBroker) ReadOne(ctx context.Context, group, consumer string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.group(group)
	if g.next >= len(b.log) {
		return Item{}, ErrNoItems
	}
	e := b.log[g.next]
	g.next++

	item := e.item
	item.Handle = e.handle
	g.pending[e.handle] = memPending{seq: int64(g.next), item: item, consumer: consumer, claimedAt: b.clock.Now()}
	return item, nil
}

func (b *MemoryBroker) Ack(ctx context.Context, group string, handle Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.group(group).pending, handle)
	return nil
}

func (b *MemoryBroker) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.group(group)
	cutoff := b.clock.Now().Add(-minIdle)

	stale := make([]memPending, 0)
	for handle, p := range g.pending {
		if p.claimedAt.After(cutoff) {
			continue
		}
		stale = append(stale, p)
		delete(g.pending, handle)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].seq < stale[j].seq })
	for _, p := range stale {
		item := p.item
		item.Attempts++
		b.publishLocked(item)
	}
	return len(stale), nil
}

// Pending returns the items claimed by group and not yet acknowledged.
func (b *MemoryBroker) Pending(group string) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.group(group)
	out := make([]memPending, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	items := make([]Item, 0, len(out))
	for _, p := range out {
		items = append(items, p.item)
	}
	return items
}

// Published returns every item ever published, oldest first.
func (b *MemoryBroker) Published() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := make([]Item, 0, len(b.log))
	for _, e := range b.log {
		items = append(items, e.item)
	}
	return items
}

func (b *MemoryBroker) group(name string) *memGroup {
	g, ok := b.groups[name]
	if !ok {
		g = &memGroup{pending: make(map[Handle]memPending)}
		b.groups[name] = g
	}
	return g
}
