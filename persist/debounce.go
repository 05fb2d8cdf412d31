package persist

import (
	"sync"
	"time"

	"github.com/deskfs/deskfs/internal/util"
)

// Debouncer coalesces save requests. Mutations arrive in bursts (a drag of
// ten files is ten commits), so each Trigger arms or re-arms a timer and
// only the last state within the window is written.
type Debouncer struct {
	store Store
	delay time.Duration
	snap  func() *Snapshot

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer wires a debouncer to a store. snap is called at fire time so
// the snapshot reflects the latest committed state, not the triggering one.
func NewDebouncer(store Store, delay time.Duration, snap func() *Snapshot) *Debouncer {
	return &Debouncer{store: store, delay: delay, snap: snap}
}

// Trigger schedules a save after the debounce window, resetting the window
// if one is already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush cancels any pending timer and saves immediately. Used on shutdown.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()

	if err := d.store.Save(d.snap()); err != nil {
		logger := util.GetLogger("persist")
		logger.Error().Err(err).Msg("Failed to save snapshot")
	}
}
