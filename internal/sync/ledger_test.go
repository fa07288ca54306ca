package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestLedger_SeenAfterRecord(t *testing.T) {
	l := newLedger(clockwork.NewFakeClock(), time.Minute, 500)

	assert.False(t, l.Seen("e1"))
	l.Record("e1")
	assert.True(t, l.Seen("e1"))
}

func TestLedger_TTLPruneBeforeEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newLedger(clock, time.Minute, 3)

	l.Record("old1")
	l.Record("old2")
	clock.Advance(2 * time.Minute)
	l.Record("new1")
	l.Record("new2") // overflow: TTL prune removes old1/old2

	assert.False(t, l.Seen("old1"))
	assert.False(t, l.Seen("old2"))
	assert.True(t, l.Seen("new1"))
	assert.True(t, l.Seen("new2"))
	assert.Equal(t, 2, l.Size())
}

func TestLedger_EvictsOldestWhenTTLNotEnough(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newLedger(clock, time.Minute, 3)

	l.Record("e1")
	l.Record("e2")
	l.Record("e3")
	l.Record("e4") // nothing expired, oldest goes

	assert.False(t, l.Seen("e1"))
	assert.True(t, l.Seen("e2"))
	assert.True(t, l.Seen("e3"))
	assert.True(t, l.Seen("e4"))
}

func TestLedger_NeverExceedsMaxAfterCleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newLedger(clock, time.Minute, 10)

	for i := 0; i < 100; i++ {
		l.Record(fmt.Sprintf("e%d", i))
		clock.Advance(time.Second)
		assert.LessOrEqual(t, l.Size(), 10)
	}
}

func TestLedger_RecordIsIdempotent(t *testing.T) {
	l := newLedger(clockwork.NewFakeClock(), time.Minute, 500)

	l.Record("e1")
	l.Record("e1")

	assert.Equal(t, 1, l.Size())
}
