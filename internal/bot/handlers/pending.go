package handlers

import "sync"

// PendingLogins tracks private chats that were asked for an access key.
type PendingLogins struct {
	mu    sync.Mutex
	chats map[int64]struct{}
}

// NewPendingLogins returns an empty set.
func NewPendingLogins() *PendingLogins {
	return &PendingLogins{chats: make(map[int64]struct{})}
}

// Add marks chatID as waiting for a key.
func (p *PendingLogins) Add(chatID int64) {
	p.mu.Lock()
	p.chats[chatID] = struct{}{}
	p.mu.Unlock()
}

// Remove clears chatID.
func (p *PendingLogins) Remove(chatID int64) {
	p.mu.Lock()
	delete(p.chats, chatID)
	p.mu.Unlock()
}

// Has reports whether chatID is waiting for a key.
func (p *PendingLogins) Has(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.chats[chatID]
	return ok
}
