// Package transaction provides ControllerTransaction, a handle for batching
// reads and writes across one or more universes and committing them as a
// single atomic unit (spec.md §4.2).
package transaction

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lacylights/dmxcore/internal/universe"
)

// Controller is the subset of UniverseController a transaction needs.
// Satisfied by *universe.UniverseController.
type Controller interface {
	CurrentValue(channel universe.ChannelId) universe.ChannelValue
	ScheduleBatch(changes map[universe.ChannelId]universe.ChannelChange)
}

// Registry resolves a universe address string to its controller. Callers
// typically back this with a map populated at startup from config.
type Registry interface {
	Lookup(key string) (Controller, bool)
}

// ControllerTransaction collects pending writes to any number of universes
// and commits them together: every write becomes visible in the universes'
// next emitted frame, or none do if the transaction is discarded.
type ControllerTransaction struct {
	registry Registry

	mu      sync.Mutex
	pending map[string]map[universe.ChannelId]universe.ChannelChange
	done    bool
}

// Open starts a new transaction against the given registry.
func Open(registry Registry) *ControllerTransaction {
	return &ControllerTransaction{
		registry: registry,
		pending:  make(map[string]map[universe.ChannelId]universe.ChannelChange),
	}
}

// Read returns the current value of a channel in the named universe,
// reflecting any writes already staged in this transaction but not yet
// committed. Returns 0, false if the universe is unknown.
func (tx *ControllerTransaction) Read(universeKey string, channel universe.ChannelId) (universe.ChannelValue, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if staged, ok := tx.pending[universeKey]; ok {
		if change, ok := staged[channel]; ok {
			return change.Target, true
		}
	}

	ctrl, ok := tx.registry.Lookup(universeKey)
	if !ok {
		return 0, false
	}
	return ctrl.CurrentValue(channel), true
}

// Write stages a channel write. It is not visible to other transactions or
// to reads on the live controller until Commit is called.
func (tx *ControllerTransaction) Write(universeKey string, channel universe.ChannelId, change universe.ChannelChange) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	if _, ok := tx.registry.Lookup(universeKey); !ok {
		return fmt.Errorf("unknown universe %q", universeKey)
	}

	if tx.pending[universeKey] == nil {
		tx.pending[universeKey] = make(map[universe.ChannelId]universe.ChannelChange)
	}
	tx.pending[universeKey][channel] = change
	return nil
}

// Commit applies every staged write to its controller via ScheduleBatch.
// Commits are best-effort per universe: a universe missing from the
// registry is logged and its writes are dropped, but every other pending
// universe still receives its writes. Returns a combined error only after
// every pending universe has been attempted (spec.md §4.2 Notes).
func (tx *ControllerTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	tx.done = true

	var errs []error
	for key, changes := range tx.pending {
		ctrl, ok := tx.registry.Lookup(key)
		if !ok {
			err := fmt.Errorf("universe %q disappeared before commit", key)
			log.Printf("transaction: %v", err)
			errs = append(errs, err)
			continue
		}
		ctrl.ScheduleBatch(changes)
	}
	return errors.Join(errs...)
}

// Discard abandons every staged write. Safe to call after Commit (no-op).
func (tx *ControllerTransaction) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	tx.pending = nil
}

// MapRegistry is a simple in-memory Registry backed by a map, suitable for
// wiring a fixed set of universes at startup.
type MapRegistry struct {
	controllers map[string]Controller
}

// NewMapRegistry builds a Registry from a key->controller map.
func NewMapRegistry(controllers map[string]Controller) *MapRegistry {
	return &MapRegistry{controllers: controllers}
}

// Lookup implements Registry.
func (r *MapRegistry) Lookup(key string) (Controller, bool) {
	ctrl, ok := r.controllers[key]
	return ctrl, ok
}
