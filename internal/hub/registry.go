package hub

import "sync"

// Registry drží aktivní spojení. Ven nikdy nepouští mapu, jen kopie.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

func (r *Registry) Add(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	return len(r.conns)
}

// Remove vrací true, pokud spojení v registru bylo.
func (r *Registry) Remove(c *Conn) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; !ok {
		return false, len(r.conns)
	}
	delete(r.conns, c.ID)
	return true, len(r.conns)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot vrací kopii seznamu spojení pro iteraci bez držení zámku.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// SubscribersOf vrací spojení, která odebírají daný senzor.
func (r *Registry) SubscribersOf(sensorKey string) []*Conn {
	var out []*Conn
	for _, c := range r.Snapshot() {
		if c.isSubscribed(sensorKey) {
			out = append(out, c)
		}
	}
	return out
}
