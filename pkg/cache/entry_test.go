package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: now.Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: now.Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: now.Add(-1 * time.Nanosecond),
			want:    true,
		},
		{
			name:    "expires exactly now",
			expires: now,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				ExpiresAt: tt.expires,
			}
			if got := entry.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    time.Duration
	}{
		{
			name:    "one hour remaining",
			expires: now.Add(1 * time.Hour),
			want:    time.Hour,
		},
		{
			name:    "already expired",
			expires: now.Add(-1 * time.Hour),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{ExpiresAt: tt.expires}
			if got := entry.TTL(now); got != tt.want {
				t.Errorf("TTL() = %v, want %v", got, tt.want)
			}
		})
	}
}
