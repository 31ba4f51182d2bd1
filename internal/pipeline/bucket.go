package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// BarWidth is the fixed interval shared by price bars and transaction buckets.
type BarWidth struct {
	Label    string
	Duration time.Duration
}

var barWidths = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// DefaultBarWidth is the 15-minute width used when none is configured.
var DefaultBarWidth = BarWidth{Label: "15m", Duration: 15 * time.Minute}

// ParseBarWidth accepts one of 15m, 1h, 4h, 1d.
func ParseBarWidth(s string) (BarWidth, error) {
	label := strings.ToLower(strings.TrimSpace(s))
	d, ok := barWidths[label]
	if !ok {
		return BarWidth{}, fmt.Errorf("ParseBarWidth: unsupported bar width %q (want 15m, 1h, 4h or 1d)", s)
	}
	return BarWidth{Label: label, Duration: d}, nil
}

func (w BarWidth) String() string {
	return w.Label
}

// Bucket returns the start of the width-sized interval containing t:
// floor(unix(t) / W) * W, in t's location. Sub-second precision is dropped.
func Bucket(t time.Time, width time.Duration) time.Time {
	w := int64(width / time.Second)
	if w <= 0 {
		return t
	}
	secs := t.Unix()
	start := secs / w * w
	if secs < 0 && secs%w != 0 {
		start -= w
	}
	return time.Unix(start, 0).In(t.Location())
}

// Aligned reports whether t already sits on a bucket boundary.
func Aligned(t time.Time, width time.Duration) bool {
	return t.Nanosecond() == 0 && Bucket(t, width).Equal(t)
}
