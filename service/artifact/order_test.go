package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSort(t *testing.T) {
	testCases := []struct {
		description string
		input       []string
		expect      []string
		latest      string
	}{
		{description: "mixed falls back to lexicographic", input: []string{"10", "0.2", "0.1"}, expect: []string{"0.1", "0.2", "10"}, latest: "10"},
		{description: "all integers sort numerically", input: []string{"2", "10", "9"}, expect: []string{"2", "9", "10"}, latest: "10"},
		{description: "one non integer switches to lexicographic", input: []string{"2", "10", "r9"}, expect: []string{"10", "2", "r9"}, latest: "r9"},
		{description: "words", input: []string{"beta", "alpha"}, expect: []string{"alpha", "beta"}, latest: "beta"},
		{description: "leading zeros", input: []string{"010", "9"}, expect: []string{"9", "010"}, latest: "010"},
		{description: "empty", input: nil, expect: []string{}, latest: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expect, Sort(tc.input))
			assert.Equal(t, tc.latest, Latest(tc.input))
		})
	}
}

func TestSort_DoesNotMutateInput(t *testing.T) {
	input := []string{"3", "1", "2"}
	_ = Sort(input)
	assert.Equal(t, []string{"3", "1", "2"}, input)
}
