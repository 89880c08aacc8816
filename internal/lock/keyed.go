// Package lock provides an in-process keyed mutex used to serialize
// check-then-write sequences per table and per ingredient.
package lock

import (
	"fmt"
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key. Entries are released once no goroutine
// holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed creates an empty keyed mutex.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock acquires every key in sorted order and returns the matching unlock
// function. Duplicate keys are acquired once.
func (k *Keyed) Lock(keys ...string) (unlock func()) {
	keys = normalize(keys)
	held := make([]*entry, 0, len(keys))
	for _, key := range keys {
		e := k.acquire(key)
		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(keys[i])
		}
	}
}

// Len reports how many keys currently have an entry.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// TableKey names the lock guarding a table's order and occupancy.
func TableKey(id uint) string {
	return fmt.Sprintf("table:%d", id)
}

// IngredientKey names the lock guarding an ingredient's stock.
func IngredientKey(id uint) string {
	return fmt.Sprintf("ingredient:%d", id)
}

// BookingKey names the lock guarding a booking's status.
func BookingKey(id uint) string {
	return fmt.Sprintf("booking:%d", id)
}
