package services

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// A route is presented again exactly when the window has passed since its
// last presentation, whatever the arrival pattern.
func TestMemoryDedupWindow_MatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w, err := NewMemoryDedupWindow(DefaultDedupWindow, DefaultDedupRetention, 0)
		if err != nil {
			t.Fatalf("window: %v", err)
		}

		keys := []string{"MFBR-0001|San Fernando|San Juan", "MFBR-0002|San Fernando|San Juan", "MFBR-0001|San Juan|San Fernando"}
		lastShown := map[string]time.Time{}
		now := testStart

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 90_000).Draw(t, "gapMs")) * time.Millisecond)
			key := rapid.SampledFrom(keys).Draw(t, "key")

			got, err := w.ShouldPresent(context.Background(), key, now)
			if err != nil {
				t.Fatalf("ShouldPresent: %v", err)
			}

			last, seen := lastShown[key]
			want := !seen || now.Sub(last) >= DefaultDedupWindow
			if got != want {
				t.Fatalf("key %s at %v: got %v want %v (last shown %v)", key, now, got, want, last)
			}
			if got {
				lastShown[key] = now
			}
		}
	})
}
