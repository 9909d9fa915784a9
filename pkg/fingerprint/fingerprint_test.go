package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupIDDeterministic(t *testing.T) {
	a := GroupID([]string{"c1", "c2", "c3"})
	b := GroupID([]string{"c3", "c1", "c2"})
	assert.Equal(t, a, b, "same membership must produce the same id regardless of order")
}

func TestGroupIDDistinctMemberships(t *testing.T) {
	a := GroupID([]string{"c1", "c2"})
	b := GroupID([]string{"c1", "c3"})
	assert.NotEqual(t, a, b)
}

func TestGroupIDNoBoundaryCollision(t *testing.T) {
	// Concatenation without a separator would make these collide.
	a := GroupID([]string{"ab", "c"})
	b := GroupID([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}

func TestGroupIDDoesNotMutateInput(t *testing.T) {
	ids := []string{"z", "a", "m"}
	GroupID(ids)
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestGroupIDLength(t *testing.T) {
	assert.Len(t, GroupID([]string{"c1", "c2"}), 16)
}
