package models

import "testing"

func TestTokenStatsHitRate(t *testing.T) {
	if got := (TokenStats{}).HitRate(); got != 0 {
		t.Errorf("empty hit rate = %v, want 0", got)
	}
	if got := (TokenStats{Hits: 3, Misses: 1}).HitRate(); got != 75 {
		t.Errorf("hit rate = %v, want 75", got)
	}
}
