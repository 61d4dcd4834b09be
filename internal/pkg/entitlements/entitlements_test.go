package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive("active"))
	assert.True(t, IsActive(" Active "))

	for _, status := range []string{"trialing", "past_due", "canceled", "incomplete", "unpaid", "", "premium"} {
		assert.False(t, IsActive(status), "status %q", status)
	}
}

func TestBlocksNewSubscription(t *testing.T) {
	assert.True(t, BlocksNewSubscription("active"))
	assert.True(t, BlocksNewSubscription("trialing"))

	for _, status := range []string{"past_due", "canceled", "incomplete", "incomplete_expired", "unpaid", ""} {
		assert.False(t, BlocksNewSubscription(status), "status %q", status)
	}
}

func TestKnownStatus(t *testing.T) {
	for _, status := range []string{"active", "trialing", "past_due", "canceled", "incomplete", "incomplete_expired", "unpaid"} {
		assert.True(t, KnownStatus(status), "status %q", status)
	}
	for _, status := range []string{"", "paused", "something_new"} {
		assert.False(t, KnownStatus(status), "status %q", status)
	}
}
