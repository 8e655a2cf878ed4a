package feed

import "sync"

// defaultHiddenUsers bounds how many users' hidden sets are remembered.
const defaultHiddenUsers = 10000

// hiddenSets remembers the last hidden item ids read for each user so a
// failed read does not bring hidden items back. Entries are dropped in
// arbitrary order once the bound is reached.
type hiddenSets struct {
	mu    sync.Mutex
	max   int
	users map[string]map[string]struct{}
}

func newHiddenSets(max int) *hiddenSets {
	if max <= 0 {
		max = defaultHiddenUsers
	}
	return &hiddenSets{max: max, users: make(map[string]map[string]struct{})}
}

// store replaces the user's set with ids.
func (h *hiddenSets) store(userID string, ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.makeRoom(userID)
	h.users[userID] = set
}

// add records one newly hidden item.
func (h *hiddenSets) add(userID, itemID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[userID]
	if !ok {
		h.makeRoom(userID)
		set = make(map[string]struct{}, 1)
		h.users[userID] = set
	}
	set[itemID] = struct{}{}
}

// load returns the remembered set, if any.
func (h *hiddenSets) load(userID string) ([]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[userID]
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, true
}

// makeRoom evicts one other user when the bound is reached. Callers hold mu.
func (h *hiddenSets) makeRoom(userID string) {
	if _, ok := h.users[userID]; ok || len(h.users) < h.max {
		return
	}
	for id := range h.users {
		delete(h.users, id)
		return
	}
}
