package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveUIDExplicit(t *testing.T) {
	uid := ResolveUID("visitor_12345", "1.2.3.4", "Mozilla/5.0")
	assert.Equal(t, "visitor_12345", uid)
}

func TestResolveUIDRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		uid  string
	}{
		{"too short", "abc"},
		{"too long", string(make([]byte, 65))},
		{"invalid chars", "user id with spaces"},
		{"empty", ""},
		{"injection", "uid:*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUID(tt.uid, "1.2.3.4", "Mozilla/5.0")
			assert.NotEqual(t, tt.uid, got)
			assert.Len(t, got, 32)
		})
	}
}

func TestResolveUIDFallbackIsStable(t *testing.T) {
	a := ResolveUID("", "1.2.3.4", "Mozilla/5.0")
	b := ResolveUID("", "1.2.3.4", "Mozilla/5.0")
	c := ResolveUID("", "5.6.7.8", "Mozilla/5.0")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
