package hub

import (
	"sort"
	"sync"
	"sync/atomic"

	"tenant-telemetry/internal/model"
)

// State je stav spojení. Přechody: Connecting -> Authenticated -> Disconnected.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	}
	return "invalid"
}

// Conn je jedno klientské spojení. Zprávy jdou do omezené fronty,
// kterou vyprazdňuje writer goroutina transportu.
type Conn struct {
	ID string

	out  chan []byte
	done chan struct{}

	state atomic.Int32
	drops atomic.Int32

	mu        sync.Mutex
	principal model.Principal
	subs      map[string]struct{}

	closeOnce sync.Once
	onClose   func()
}

// NewConn vytvoří spojení ve stavu Connecting.
func NewConn(id string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Conn{
		ID:   id,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
		subs: make(map[string]struct{}),
	}
}

// OnClose nastaví callback volaný při prvním Close (zavření transportu).
func (c *Conn) OnClose(fn func()) { c.onClose = fn }

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) Principal() model.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// Outbound je fronta odchozích zpráv pro writer.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// Done se zavře po Close.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Subscriptions vrací seřazenou kopii odebíraných senzorů.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for k := range c.subs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Conn) authenticate(p model.Principal) bool {
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated))
}

func (c *Conn) isSubscribed(sensorKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[sensorKey]
	return ok
}

// addSub vrací true, pokud odběr ještě neexistoval.
func (c *Conn) addSub(sensorKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sensorKey]; ok {
		return false
	}
	c.subs[sensorKey] = struct{}{}
	return true
}

func (c *Conn) removeSub(sensorKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sensorKey]; !ok {
		return false
	}
	delete(c.subs, sensorKey)
	return true
}

// disconnect přepne do koncového stavu a vrátí počet zahozených odběrů.
// Druhé volání vrací -1.
func (c *Conn) disconnect() int {
	if State(c.state.Swap(int32(StateDisconnected))) == StateDisconnected {
		return -1
	}
	c.mu.Lock()
	n := len(c.subs)
	c.subs = make(map[string]struct{})
	c.mu.Unlock()
	return n
}

// enqueue vloží zprávu do fronty bez blokování. Plná fronta zprávu zahodí.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		c.drops.Store(0)
		return true
	default:
		c.drops.Add(1)
		return false
	}
}

// consecutiveDrops: kolik zpráv za sebou se nevešlo do fronty.
func (c *Conn) consecutiveDrops() int { return int(c.drops.Load()) }

// Close zavře spojení. Bezpečné volat opakovaně.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
}
