package mailbox

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMailbox_DeliversInOrderWithoutBlockingProducer(t *testing.T) {
	m := New[int]()
	defer m.Close()

	for i := 0; i < 1000; i++ {
		assert.Equal(t, true, m.Push(i))
	}

	for i := 0; i < 1000; i++ {
		select {
		case v := <-m.C():
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for item %d", i)
		}
	}
}

func TestMailbox_CloseClosesChannelAndRejectsPush(t *testing.T) {
	m := New[string]()
	m.Push("a")
	m.Close()
	m.Close()

	assert.Equal(t, false, m.Push("b"))

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-m.C():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed")
		}
	}
}
