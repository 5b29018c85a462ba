package random_test

import (
	"github.com/myrjola/profilescan/internal/random"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLetters(t *testing.T) {
	t.Parallel()
	for _, n := range []uint{0, 8, 200} {
		got, err := random.Letters(n)
		require.NoError(t, err)
		require.Len(t, got, int(n))
		for _, r := range got {
			require.True(t, r >= 'a' && r <= 'z', "unexpected rune %q", r)
		}
	}
}

func TestJitter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		d       time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{name: "zero", d: 0, wantMin: 0, wantMax: 0},
		{name: "negative", d: -time.Second, wantMin: 0, wantMax: 0},
		{name: "one nanosecond", d: 1, wantMin: 1, wantMax: 1},
		{name: "second", d: time.Second, wantMin: 500 * time.Millisecond, wantMax: time.Second - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 50 {
				got := random.Jitter(tt.d)
				require.GreaterOrEqual(t, got, tt.wantMin)
				require.LessOrEqual(t, got, tt.wantMax)
			}
		})
	}
}
