package rooms

import "sync"

// Registry is the process-local mapping from room code to live Room. It is
// the sole owner of rooms; sessions hold a code and re-acquire the Room for
// every mutation.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Get returns the live room for a code, if any.
func (rg *Registry) Get(code string) (*Room, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	room, ok := rg.rooms[code]
	return room, ok
}

// InsertIfAbsent inserts room under code unless one already exists; the
// first insert wins and the existing room is returned.
func (rg *Registry) InsertIfAbsent(code string, room *Room) (*Room, bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if existing, ok := rg.rooms[code]; ok {
		return existing, false
	}
	rg.rooms[code] = room
	roomsLive.Set(float64(len(rg.rooms)))
	return room, true
}

// Remove drops the room registered under code if it is the given one.
func (rg *Registry) Remove(code string, room *Room) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if existing, ok := rg.rooms[code]; ok && existing == room {
		delete(rg.rooms, code)
		roomsLive.Set(float64(len(rg.rooms)))
	}
}

// Evict unconditionally drops whatever room is registered under code; used
// by the workspace deletion cascade.
func (rg *Registry) Evict(code string) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if _, ok := rg.rooms[code]; ok {
		delete(rg.rooms, code)
		roomsLive.Set(float64(len(rg.rooms)))
	}
}

// Snapshot returns a copy of the current code→room mapping for the sweeper.
func (rg *Registry) Snapshot() map[string]*Room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	out := make(map[string]*Room, len(rg.rooms))
	for code, room := range rg.rooms {
		out[code] = room
	}
	return out
}

// Len returns the number of live rooms.
func (rg *Registry) Len() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.rooms)
}
