package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestChecker(t *testing.T) {
	c := NewChecker([]string{" Example.COM ", "@partner.org", ""}, zap.NewNop())

	assert.True(t, c.IsWhitelisted("boss@example.com"))
	assert.True(t, c.IsWhitelisted("nobody@spam.biz", "ops@PARTNER.org"))
	assert.False(t, c.IsWhitelisted("x@sub.example.com"))
	assert.False(t, c.IsWhitelisted("not-an-address"))
	assert.False(t, NewChecker(nil, zap.NewNop()).IsWhitelisted("boss@example.com"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("A@Example.com"))
	assert.Equal(t, "", Domain("a@"))
	assert.Equal(t, "", Domain("nobody"))
}
