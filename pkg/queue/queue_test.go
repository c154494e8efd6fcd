package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, <-q.Out())
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Close()
	q.Push("c")

	var got []string
	for v := range q.Out() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
