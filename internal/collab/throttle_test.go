package collab

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestThrottlerFirstSendIsImmediate(t *testing.T) {
	mock := newMock()
	rec := &recorder[int]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)
	defer th.Stop()

	th.Send("cursor", 1)
	assert.Equal(t, []int{1}, rec.values())
}

func TestThrottlerSendsLastValueAtWindowClose(t *testing.T) {
	mock := newMock()
	rec := &recorder[int]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)
	defer th.Stop()

	for i := 1; i <= 5; i++ {
		th.Send("cursor", i)
	}
	assert.Equal(t, []int{1}, rec.values())

	mock.Add(33 * time.Millisecond)
	eventually(t, func() bool { return rec.len() == 2 }, "trailing send")
	assert.Equal(t, []int{1, 5}, rec.values())

	// the trailing send opened a window; an idle one then closes
	advanceUntil(t, mock, 33*time.Millisecond, func() bool { return th.Len() == 0 }, "window closed")
	assert.Equal(t, 2, rec.len())

	th.Send("cursor", 6)
	assert.Equal(t, []int{1, 5, 6}, rec.values())
}

func TestThrottlerBoundsWriteRate(t *testing.T) {
	mock := newMock()
	rec := &recorder[int]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)
	defer th.Stop()

	// 50 updates over 500ms
	for i := 1; i <= 50; i++ {
		th.Send("cursor", i)
		mock.Add(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	advanceUntil(t, mock, 33*time.Millisecond, func() bool {
		v := rec.values()
		return len(v) > 0 && v[len(v)-1] == 50
	}, "last value sent")

	n := rec.len()
	if n < 2 || n > 18 {
		t.Fatalf("got %d writes for 50 updates in 500ms", n)
	}
	assert.Equal(t, 1, rec.values()[0])
}

func TestThrottlerKeysAreIndependent(t *testing.T) {
	mock := newMock()
	rec := &recorder[string]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)
	defer th.Stop()

	th.Send("drag/a", "a1")
	th.Send("drag/b", "b1")
	th.Send("drag/a", "a2")
	assert.Equal(t, []string{"a1", "b1"}, rec.values())
	assert.Equal(t, 2, th.Len())
}

func TestThrottlerCancelDropsPendingValue(t *testing.T) {
	mock := newMock()
	rec := &recorder[int]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)
	defer th.Stop()

	th.Send("drag/a", 1)
	th.Send("drag/a", 2)
	th.Cancel("drag/a")

	mock.Add(100 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int{1}, rec.values())
	assert.Equal(t, 0, th.Len())
}

func TestThrottlerIgnoresSendAfterStop(t *testing.T) {
	mock := newMock()
	rec := &recorder[int]{}
	th := NewThrottler(33*time.Millisecond, mock, rec.record)

	th.Stop()
	th.Send("cursor", 1)
	assert.Equal(t, 0, rec.len())
}
