package realtime

import "sync"

// ItemStatus is the lifecycle state of a conversation item.
type ItemStatus string

const (
	// ItemInProgress marks an item still receiving deltas.
	ItemInProgress ItemStatus = "in_progress"
	// ItemCompleted marks an item with all content received.
	ItemCompleted ItemStatus = "completed"
)

// Formatted is the display projection of an item: the transcript text
// accumulated from deltas and the decoded PCM audio, populated as
// fragments arrive.
type Formatted struct {
	Transcript string
	Audio      []byte
}

// Item is one turn of dialog. Items are created on the first event
// referencing a new id, mutated incrementally as deltas arrive, and
// only ever removed by a wholesale session reset.
type Item struct {
	ID        string
	Role      string
	Status    ItemStatus
	Formatted Formatted
}

// clone returns a deep copy safe to hand to other goroutines.
func (it Item) clone() Item {
	cp := it
	if it.Formatted.Audio != nil {
		cp.Formatted.Audio = make([]byte, len(it.Formatted.Audio))
		copy(cp.Formatted.Audio, it.Formatted.Audio)
	}
	return cp
}

// Delta is the incremental change attached to a conversation update:
// exactly the information needed to update one item without replaying
// the whole conversation.
type Delta struct {
	// Audio is decoded PCM appended to the item, nil if none.
	Audio []byte

	// Transcript is the text fragment appended to the item, "" if none.
	Transcript string

	// StatusChanged reports a status transition.
	StatusChanged bool
}

// conversation owns the ordered item list. All mutation happens on
// the client's read loop; snapshots are deep copies.
type conversation struct {
	mu    sync.Mutex
	order []string
	items map[string]*Item
}

func newConversation() *conversation {
	return &conversation{items: make(map[string]*Item)}
}

// upsert returns the item for id, creating it in order on first sight.
func (c *conversation) upsert(id, role string) *Item {
	if it, ok := c.items[id]; ok {
		if it.Role == "" {
			it.Role = role
		}
		return it
	}
	it := &Item{ID: id, Role: role, Status: ItemInProgress}
	c.items[id] = it
	c.order = append(c.order, id)
	return it
}

func (c *conversation) appendTranscript(id, role, delta string) Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.upsert(id, role)
	it.Formatted.Transcript += delta
	return it.clone()
}

func (c *conversation) setTranscript(id, role, text string) Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.upsert(id, role)
	it.Formatted.Transcript = text
	return it.clone()
}

func (c *conversation) appendAudio(id, role string, pcm []byte) Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.upsert(id, role)
	it.Formatted.Audio = append(it.Formatted.Audio, pcm...)
	return it.clone()
}

func (c *conversation) create(id, role string) Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsert(id, role).clone()
}

// complete marks the item completed and reports whether the status
// actually changed.
func (c *conversation) complete(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.upsert(id, "")
	changed := it.Status != ItemCompleted
	it.Status = ItemCompleted
	return it.clone(), changed
}

// snapshot returns deep copies of every item in arrival order.
func (c *conversation) snapshot() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].clone())
	}
	return out
}

// clear drops every item. Used on session reset.
func (c *conversation) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.items = make(map[string]*Item)
}
