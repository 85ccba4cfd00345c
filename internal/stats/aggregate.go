// Package stats turns raw detection lists into the per-category breakdown
// shown to the user. Aggregation is pure: no hidden state, no I/O.
package stats

import (
	"bytes"
	"encoding/json"

	"github.com/ecosort/wastelens/internal/detect"
)

// Snapshot is the current view of detection counts by category. Each new
// successful detection replaces the snapshot wholesale; counts are never
// merged across frames. Category order is first-occurrence insertion order.
type Snapshot struct {
	TotalItems int
	order      []string
	counts     map[string]int
}

// Aggregate groups detections by category and counts occurrences.
func Aggregate(detections []detect.Detection) Snapshot {
	snap := Snapshot{
		TotalItems: len(detections),
		counts:     make(map[string]int, len(detections)),
	}

	for _, d := range detections {
		if _, seen := snap.counts[d.Class]; !seen {
			snap.order = append(snap.order, d.Class)
		}
		snap.counts[d.Class]++
	}

	return snap
}

// Count returns the number of detections for a category.
func (s Snapshot) Count(category string) int {
	return s.counts[category]
}

// Categories returns the category names in first-occurrence order.
func (s Snapshot) Categories() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalJSON emits the wire statistics shape with categories in
// first-occurrence order rather than Go's sorted map order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"total_items":`)

	total, err := json.Marshal(s.TotalItems)
	if err != nil {
		return nil, err
	}
	buf.Write(total)

	buf.WriteString(`,"categories":{`)
	for i, category := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(category)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		count, err := json.Marshal(s.counts[category])
		if err != nil {
			return nil, err
		}
		buf.Write(count)
	}
	buf.WriteString("}}")

	return buf.Bytes(), nil
}
