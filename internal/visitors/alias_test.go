package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("consistent for the same visitor", func(t *testing.T) {
		assert.Equal(t, visitors.Alias("visitor-123"), visitors.Alias("visitor-123"))
	})

	t.Run("adjective animal format", func(t *testing.T) {
		for _, id := range []string{"", "short", "special!@#$%^&*()chars", "a-very-long-visitor-identifier"} {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(id), id)
		}
	})

	t.Run("spreads across combinations", func(t *testing.T) {
		aliases := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			aliases[visitors.Alias(fmt.Sprintf("visitor-%d", i))] = true
		}
		assert.Greater(t, len(aliases), 300)
	})
}
