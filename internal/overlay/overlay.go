// Package overlay holds the match notification shown on top of the queue.
package overlay

import (
	"time"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// Overlay is a single-slot holder: a new match replaces the active one.
// Not safe for concurrent use; it belongs to the session's event loop.
type Overlay struct {
	active   *models.MatchEvent
	replaced int
	now      func() time.Time
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{now: time.Now}
}

// Show makes p the active match. If another match was showing it is returned
// and discarded.
func (o *Overlay) Show(p models.Profile) (models.MatchEvent, bool) {
	var prev models.MatchEvent
	had := o.active != nil
	if had {
		prev = *o.active
		o.replaced++
	}
	o.active = &models.MatchEvent{Profile: p, ReceivedAt: o.now()}
	return prev, had
}

// Dismiss clears the active match. It reports whether one was showing.
func (o *Overlay) Dismiss() bool {
	had := o.active != nil
	o.active = nil
	return had
}

// Active returns the match currently showing.
func (o *Overlay) Active() (models.MatchEvent, bool) {
	if o.active == nil {
		return models.MatchEvent{}, false
	}
	return *o.active, true
}

// Replaced counts matches overwritten before being dismissed.
func (o *Overlay) Replaced() int {
	return o.replaced
}
