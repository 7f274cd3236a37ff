package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendQueueFIFOOrder(t *testing.T) {
	q := newSendQueue()
	q.pushBack([]byte("a"))
	q.pushBack([]byte("b"))

	first, ok := q.popFront()
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), first)

	second, ok := q.popFront()
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), second)

	_, ok = q.popFront()
	assert.False(t, ok)
}

func TestSendQueuePushFrontRetriesFirst(t *testing.T) {
	q := newSendQueue()
	q.pushBack([]byte("normal"))
	q.pushFront([]byte("retry"))

	first, _ := q.popFront()
	assert.Equal(t, []byte("retry"), first)
	second, _ := q.popFront()
	assert.Equal(t, []byte("normal"), second)
}
