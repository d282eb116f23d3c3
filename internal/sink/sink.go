// Package sink delivers enriched connection events downstream.
package sink

import (
	"sync"

	"netglobe/internal/models"
)

// Sink receives one event per accepted connection. Emit is called from
// multiple goroutines and must not block for long.
type Sink interface {
	Emit(ev models.EnrichedEvent)
}

// Func adapts a function to Sink.
type Func func(ev models.EnrichedEvent)

func (f Func) Emit(ev models.EnrichedEvent) { f(ev) }

// Multi fans events out to every sink in order.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

func (m *Multi) Add(s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

func (m *Multi) Emit(ev models.EnrichedEvent) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(ev)
	}
}
