package pipeline

import (
	"testing"
	"time"
)

func TestParseBarWidth(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "1H", want: time.Hour},
		{in: " 4h ", want: 4 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "5m", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBarWidth(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBarWidth(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBarWidth(%q): %v", tt.in, err)
			}
			if got.Duration != tt.want {
				t.Errorf("ParseBarWidth(%q) = %v, want %v", tt.in, got.Duration, tt.want)
			}
		})
	}
}

func TestBucket(t *testing.T) {
	w := 15 * time.Minute
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "inside interval",
			in:   time.Date(2024, 3, 5, 10, 7, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "on boundary",
			in:   time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "last instant of interval",
			in:   time.Date(2024, 3, 5, 10, 14, 59, 999_999_999, time.UTC),
			want: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "before epoch floors down",
			in:   time.Unix(-1, 0).UTC(),
			want: time.Unix(-900, 0).UTC(),
		},
		{
			name: "exact negative multiple",
			in:   time.Unix(-1800, 0).UTC(),
			want: time.Unix(-1800, 0).UTC(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bucket(tt.in, w)
			if !got.Equal(tt.want) {
				t.Errorf("Bucket(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != tt.in.Location() {
				t.Errorf("Bucket changed location to %v", got.Location())
			}
		})
	}
}

func TestBucket_MonotonicAndAligned(t *testing.T) {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, w := range []time.Duration{15 * time.Minute, time.Hour, 4 * time.Hour, 24 * time.Hour} {
		var prev time.Time
		for i := 0; i < 5000; i++ {
			ts := base.Add(time.Duration(i) * 37 * time.Second)
			b := Bucket(ts, w)
			if b.After(ts) {
				t.Fatalf("width %v: Bucket(%v) = %v is after its input", w, ts, b)
			}
			if ts.Sub(b) >= w {
				t.Fatalf("width %v: Bucket(%v) = %v is a full width behind", w, ts, b)
			}
			if !Aligned(b, w) {
				t.Fatalf("width %v: Bucket(%v) = %v is not aligned", w, ts, b)
			}
			if i > 0 && b.Before(prev) {
				t.Fatalf("width %v: not monotonic at %v: %v < %v", w, ts, b, prev)
			}
			prev = b
		}
	}
}

func TestAligned(t *testing.T) {
	w := 15 * time.Minute
	if !Aligned(time.Date(2024, 3, 5, 10, 45, 0, 0, time.UTC), w) {
		t.Error("10:45 should be aligned to 15m")
	}
	if Aligned(time.Date(2024, 3, 5, 10, 46, 0, 0, time.UTC), w) {
		t.Error("10:46 should not be aligned to 15m")
	}
	if Aligned(time.Date(2024, 3, 5, 10, 45, 0, 1, time.UTC), w) {
		t.Error("sub-second offset should not be aligned")
	}
}
