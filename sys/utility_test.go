package sys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "🌱🌱🌱🌱...", Truncate("🌱🌱🌱🌱🌱🌱🌱🌱", 7), "cuts on runes")
}

func TestFormatRelativeTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		gap  time.Duration
		want string
	}{
		{30 * time.Second, "less than a minute"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{3 * time.Hour, "3 hours"},
		{26 * time.Hour, "1 day"},
		{10 * 24 * time.Hour, "1 week"},
		{60 * 24 * time.Hour, "2 months"},
		{800 * 24 * time.Hour, "2 years"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRelativeTime(base, base.Add(tt.gap)), tt.gap.String())
		assert.Equal(t, tt.want, FormatRelativeTime(base.Add(tt.gap), base), "order does not matter")
	}
}
