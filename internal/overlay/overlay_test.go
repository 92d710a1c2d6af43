package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

func TestOverlay(t *testing.T) {
	a := models.Profile{ID: "a", Name: "Ana"}
	b := models.Profile{ID: "b", Name: "Bruno"}

	t.Run("Starts empty", func(t *testing.T) {
		o := New()
		_, ok := o.Active()
		assert.False(t, ok)
		assert.False(t, o.Dismiss())
	})

	t.Run("Show then dismiss", func(t *testing.T) {
		o := New()
		_, replaced := o.Show(a)
		assert.False(t, replaced)

		ev, ok := o.Active()
		assert.True(t, ok)
		assert.Equal(t, a, ev.Profile)
		assert.False(t, ev.ReceivedAt.IsZero())

		assert.True(t, o.Dismiss())
		_, ok = o.Active()
		assert.False(t, ok)
	})

	t.Run("Last write wins", func(t *testing.T) {
		o := New()
		o.Show(a)
		prev, replaced := o.Show(b)

		assert.True(t, replaced)
		assert.Equal(t, a, prev.Profile)

		ev, _ := o.Active()
		assert.Equal(t, b, ev.Profile)
		assert.Equal(t, 1, o.Replaced())

		// one dismiss clears everything, nothing was queued behind b
		o.Dismiss()
		_, ok := o.Active()
		assert.False(t, ok)
	})
}
