package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndClear(t *testing.T) {
	tr := NewTracker(time.Minute)

	tr.Set("conv1", "alice")
	assert.ElementsMatch(t, []string{"alice"}, tr.TypingUsers("conv1"))
	assert.Empty(t, tr.TypingUsers("conv2"))

	tr.Clear("conv1", "alice")
	assert.Empty(t, tr.TypingUsers("conv1"))
}

func TestEntriesExpire(t *testing.T) {
	tr := NewTracker(20 * time.Millisecond)

	tr.Set("conv1", "alice")
	assert.ElementsMatch(t, []string{"alice"}, tr.TypingUsers("conv1"))

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, tr.TypingUsers("conv1"))
}

func TestSetRefreshesExpiry(t *testing.T) {
	tr := NewTracker(40 * time.Millisecond)

	tr.Set("conv1", "alice")
	time.Sleep(25 * time.Millisecond)
	tr.Set("conv1", "alice")
	time.Sleep(25 * time.Millisecond)

	assert.ElementsMatch(t, []string{"alice"}, tr.TypingUsers("conv1"))
}

func TestTypingUsers(t *testing.T) {
	tr := NewTracker(time.Minute)

	tr.Set("conv1", "alice")
	tr.Set("conv1", "bob")
	tr.Set("conv2", "carol")

	assert.ElementsMatch(t, []string{"alice", "bob"}, tr.TypingUsers("conv1"))
	assert.ElementsMatch(t, []string{"carol"}, tr.TypingUsers("conv2"))
}

func TestClearUser(t *testing.T) {
	tr := NewTracker(time.Minute)

	tr.Set("conv1", "alice")
	tr.Set("conv2", "alice")
	tr.Set("conv1", "bob")

	tr.ClearUser("alice")

	assert.ElementsMatch(t, []string{"bob"}, tr.TypingUsers("conv1"))
	assert.Empty(t, tr.TypingUsers("conv2"))
}
