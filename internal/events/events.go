// Package events přenáší událost "reading received" z ingestu do hubu.
//
// Bus je omezený kanál s politikou DropOldest: Publish nikdy neblokuje,
// při plné frontě zahodí nejstarší událost a vloží novou.
package events

import (
	"sync"
	"sync/atomic"

	"tenant-telemetry/internal/model"
)

// DefaultCapacity je výchozí velikost fronty (EVENT_BUFFER).
const DefaultCapacity = 1024

// ReadingReceived je událost o úspěšně uloženém měření.
type ReadingReceived struct {
	Reading model.Reading
}

// Bus je fronta událostí s jedním konzumentem (hub).
type Bus struct {
	ch      chan ReadingReceived
	mu      sync.Mutex // serializuje producenty při vyhazování nejstarší položky
	dropped atomic.Uint64
	onDrop  func()
}

// NewBus vytvoří frontu. capacity <= 0 znamená DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{ch: make(chan ReadingReceived, capacity)}
}

// OnDrop nastaví callback volaný při každé zahozené události (metriky).
// Musí se volat před prvním Publish.
func (b *Bus) OnDrop(fn func()) { b.onDrop = fn }

// Publish vloží událost. Neblokuje.
func (b *Bus) Publish(ev ReadingReceived) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		select {
		case b.ch <- ev:
			return
		default:
		}

		// Fronta je plná: vyhodíme nejstarší a zkusíme znovu.
		// Konzument mezitím mohl frontu vyprázdnit, proto i tady default.
		select {
		case <-b.ch:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
		default:
		}
	}
}

// Events vrací kanál pro konzumenta.
func (b *Bus) Events() <-chan ReadingReceived { return b.ch }

// Dropped vrací počet zahozených událostí od startu.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Len vrací aktuální počet událostí ve frontě.
func (b *Bus) Len() int { return len(b.ch) }
