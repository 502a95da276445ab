package run

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/gwpe/internal/sampler"
)

func TestProgressLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   sampler.Progress
		want string
	}{
		{
			name: "before first iteration",
			in:   sampler.Progress{LogZ: math.Inf(-1), DeltaLogZ: math.Inf(1)},
			want: "iter: 0 | ncall: 0 | eff: 0.0%",
		},
		{
			name: "running",
			in:   sampler.Progress{Iteration: 120, NCall: 3400, Efficiency: 0.125, LogZ: -1234.567, DeltaLogZ: 0.0421},
			want: "iter: 120 | ncall: 3400 | eff: 12.5% | logz: -1234.57 | dlogz: 0.042",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, progressLine(tt.in))
		})
	}
}
