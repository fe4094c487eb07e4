package gateway

import "sync"

// hub keeps the room registry: canonical group key to the set of
// clients currently joined. Rooms exist exactly as long as they have
// members; there is nothing to persist here.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func newHub() *hub {
	return &hub{
		rooms: make(map[string]map[*client]struct{}),
	}
}

func (h *hub) join(c *client, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, key := range keys {
		room, ok := h.rooms[key]
		if !ok {
			room = make(map[*client]struct{})
			h.rooms[key] = room
		}
		room[c] = struct{}{}
		c.rooms[key] = struct{}{}
	}
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range c.rooms {
		room, ok := h.rooms[key]
		if !ok {
			continue
		}
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
}

// broadcast queues data on every member of the room except the sender.
// Members whose send buffer is full are skipped; they catch up through
// pagination, not through blocking the room.
func (h *hub) broadcast(key string, data []byte, except *client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[key] {
		if c == except {
			continue
		}
		c.trySend(data)
	}
}

// inRoom reports whether the client currently holds a subscription to
// the room.
func (h *hub) inRoom(c *client, key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[key][c]
	return ok
}
