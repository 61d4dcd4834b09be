package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNextPath(t *testing.T) {
	tests := []struct {
		name string
		next string
		want string
	}{
		{"empty falls back to account", "", "/account"},
		{"local path passes", "/games/premium/neon-drift", "/games/premium/neon-drift"},
		{"billing passes", "/billing", "/billing"},
		{"absolute url is rejected", "https://evil.example.com/", "/account"},
		{"protocol-relative url is rejected", "//evil.example.com", "/account"},
		{"relative path is rejected", "games", "/account"},
		{"whitespace is trimmed", "  /billing  ", "/billing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, safeNextPath(tt.next))
		})
	}
}
