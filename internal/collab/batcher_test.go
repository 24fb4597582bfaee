package collab

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestBatcherWritesOnceAfterQuiet(t *testing.T) {
	rec := &recorder[int]{}
	b := NewBatcher(20*time.Millisecond, rec.record)
	defer b.Stop()

	for i := 1; i <= 10; i++ {
		b.Schedule("rect-1", i)
	}
	eventually(t, func() bool { return rec.len() == 1 }, "one write")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []int{10}, rec.values())
	assert.Equal(t, 0, b.Len())
}

func TestBatcherRestartsTimerOnEachCall(t *testing.T) {
	rec := &recorder[int]{}
	b := NewBatcher(200*time.Millisecond, rec.record)
	defer b.Stop()

	for i := 1; i <= 5; i++ {
		b.Schedule("rect-1", i)
		time.Sleep(20 * time.Millisecond)
	}
	// about 100ms have passed since the first call, never 200ms of quiet
	assert.Equal(t, 0, rec.len())

	eventually(t, func() bool { return rec.len() == 1 }, "write after quiet")
	assert.Equal(t, []int{5}, rec.values())
}

func TestBatcherKeysAreIndependent(t *testing.T) {
	rec := &recorder[string]{}
	b := NewBatcher(10*time.Millisecond, rec.record)
	defer b.Stop()

	b.Schedule("a", "a1")
	b.Schedule("b", "b1")
	eventually(t, func() bool { return rec.len() == 2 }, "both keys written")
}

func TestBatcherCancel(t *testing.T) {
	rec := &recorder[int]{}
	b := NewBatcher(10*time.Millisecond, rec.record)
	defer b.Stop()

	b.Schedule("rect-1", 1)
	assert.Equal(t, true, b.Cancel("rect-1"))
	assert.Equal(t, false, b.Cancel("rect-1"))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, rec.len())

	// a new schedule after cancel is not confused with the stale timer
	b.Schedule("rect-1", 2)
	eventually(t, func() bool { return rec.len() == 1 }, "write after reschedule")
	assert.Equal(t, []int{2}, rec.values())
}

func TestBatcherFlushAll(t *testing.T) {
	rec := &recorder[string]{}
	b := NewBatcher(time.Minute, rec.record)
	defer b.Stop()

	b.Schedule("b", "b2")
	b.Schedule("a", "a1")
	b.Schedule("b", "b3")

	v, ok := b.Pending("b")
	assert.Equal(t, true, ok)
	assert.Equal(t, "b3", v)

	b.FlushAll()
	assert.Equal(t, []string{"a1", "b3"}, rec.values())
	assert.Equal(t, 0, b.Len())
}
