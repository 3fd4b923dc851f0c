package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow_AlwaysUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Now().Location())
}

func TestFreeze(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	pinned := time.Date(2024, 3, 10, 1, 30, 0, 0, est)

	restore := Freeze(pinned)
	assert.True(t, Now().Equal(pinned))
	assert.Equal(t, time.UTC, Now().Location())

	restore()
	assert.False(t, Now().Equal(pinned))
}
