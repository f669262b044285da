package models

// TokenStats reports credential store metrics. Hits and misses are counted
// for the life of the process; Entries reflects the store.
type TokenStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits as a percentage of lookups, or 0 before any lookup.
func (s TokenStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
