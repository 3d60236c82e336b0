package sequencer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"

	"midiseq/debug"
)

// AutoSaver writes a snapshot once edits have been quiet for a delay.
type AutoSaver struct {
	store   *ProjectStore
	project string
	storage *Storage

	debounced func(f func())
	dirty     atomic.Bool
	saves     atomic.Int64
	mu        sync.Mutex // serializes saves
}

// NewAutoSaver starts watching storage for edits.
func NewAutoSaver(store *ProjectStore, project string, storage *Storage, delay time.Duration) *AutoSaver {
	a := &AutoSaver{
		store:     store,
		project:   project,
		storage:   storage,
		debounced: debounce.New(delay),
	}
	storage.OnChange(a.changed)
	return a
}

func (a *AutoSaver) changed() {
	a.dirty.Store(true)
	a.debounced(a.save)
}

func (a *AutoSaver) save() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty.Swap(false) {
		return
	}
	name, err := a.store.Save(a.project, a.storage)
	if err != nil {
		a.dirty.Store(true)
		debug.Warn("autosave", "project %s: %v", a.project, err)
		return
	}
	a.saves.Add(1)
	debug.Log("autosave", "project %s saved as %s", a.project, name)
}

// Flush saves immediately if there are unsaved edits.
func (a *AutoSaver) Flush() {
	a.save()
}

// Saves returns how many snapshots have been written.
func (a *AutoSaver) Saves() int64 {
	return a.saves.Load()
}
