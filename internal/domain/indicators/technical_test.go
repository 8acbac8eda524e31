package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100.0 + float64(i)
	}
	return closes
}

func TestCalculateRSI_InsufficientData(t *testing.T) {
	for n := 0; n < 15; n++ {
		result := CalculateRSI(risingCloses(n), 14)
		assert.False(t, result.IsValid, "RSI with %d bars must be invalid", n)
	}
}

func TestCalculateRSI_SaturatesAt100OnStrictRise(t *testing.T) {
	result := CalculateRSI(risingCloses(15), 14)
	require.True(t, result.IsValid)
	assert.Equal(t, 100.0, result.Value)

	// Still saturated with a longer history of strictly rising closes.
	result = CalculateRSI(risingCloses(60), 14)
	require.True(t, result.IsValid)
	assert.Equal(t, 100.0, result.Value)
}

func TestCalculateRSI_MixedSeries(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106, 105, 107, 106, 108, 107}
	result := CalculateRSI(closes, 14)
	require.True(t, result.IsValid)
	// Gains 14 points vs losses 7 points over the window: RS=2, RSI≈66.7.
	assert.InDelta(t, 66.67, result.Value, 0.1)
}

func TestCalculateRSI_AllFalling(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200.0 - float64(i)
	}
	result := CalculateRSI(closes, 14)
	require.True(t, result.IsValid)
	assert.Equal(t, 0.0, result.Value)
}

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	result := CalculateSMA(closes, 5)
	require.True(t, result.IsValid)
	assert.Equal(t, 3.0, result.Value)

	short := CalculateSMA(closes, 6)
	assert.False(t, short.IsValid)
}

func TestCalculatePrevSMA_ShiftsWindowByOne(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}
	cur := CalculateSMA(closes, 5)
	prev := CalculatePrevSMA(closes, 5)
	require.True(t, cur.IsValid)
	require.True(t, prev.IsValid)
	assert.Equal(t, 4.0, cur.Value)
	assert.Equal(t, 3.0, prev.Value)

	exact := CalculatePrevSMA(closes[:5], 5)
	assert.False(t, exact.IsValid, "prev SMA needs period+1 bars")
}

func TestCalculateVolumeRatio(t *testing.T) {
	volumes := make([]int64, 20)
	for i := range volumes {
		volumes[i] = 1000
	}
	assert.InDelta(t, 1.0, CalculateVolumeRatio(volumes), 1e-9)

	volumes[19] = 3000
	// mean = (19*1000 + 3000)/20 = 1100, ratio = 3000/1100
	assert.InDelta(t, 3000.0/1100.0, CalculateVolumeRatio(volumes), 1e-9)

	assert.Equal(t, 1.0, CalculateVolumeRatio(volumes[:10]), "short history is neutral")
}

func TestCalculateMomentum_Bounds(t *testing.T) {
	cases := []struct {
		name string
		in   MomentumInputs
	}{
		{
			name: "extreme bullish",
			in: MomentumInputs{
				RSI:         RSIResult{Value: 100, IsValid: true},
				SMA20:       SMAResult{Value: 50, IsValid: true},
				SMA50:       SMAResult{Value: 25, IsValid: true},
				Close:       100,
				VolumeRatio: 10,
			},
		},
		{
			name: "extreme bearish",
			in: MomentumInputs{
				RSI:         RSIResult{Value: 0, IsValid: true},
				SMA20:       SMAResult{Value: 200, IsValid: true},
				SMA50:       SMAResult{Value: 400, IsValid: true},
				Close:       50,
				VolumeRatio: 10,
			},
		},
		{
			name: "degenerate ratios",
			in: MomentumInputs{
				RSI:         RSIResult{Value: 50, IsValid: true},
				SMA20:       SMAResult{Value: 0.0001, IsValid: true},
				SMA50:       SMAResult{Value: 1e9, IsValid: true},
				Close:       1e9,
				VolumeRatio: 1e6,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := CalculateMomentum(tc.in)
			assert.GreaterOrEqual(t, score, -100.0)
			assert.LessOrEqual(t, score, 100.0)
		})
	}
}

func TestCalculateMomentum_SkipsInvalidTerms(t *testing.T) {
	// Only the RSI term is available; other terms are skipped, not zeroed
	// into penalties.
	score := CalculateMomentum(MomentumInputs{
		RSI:         RSIResult{Value: 70, IsValid: true},
		Close:       100,
		VolumeRatio: 1.0,
	})
	assert.InDelta(t, 30.0, score, 1e-9) // (70-50)*1.5 = 30, capped at 30

	neutral := CalculateMomentum(MomentumInputs{Close: 100, VolumeRatio: 1.0})
	assert.Equal(t, 0.0, neutral)
}

func TestCalculateMomentum_VolumeAmplifiesRunningSign(t *testing.T) {
	bullish := MomentumInputs{
		RSI:         RSIResult{Value: 60, IsValid: true},
		Close:       100,
		VolumeRatio: 2.0,
	}
	base := CalculateMomentum(MomentumInputs{RSI: bullish.RSI, Close: 100, VolumeRatio: 1.0})
	amped := CalculateMomentum(bullish)
	assert.Greater(t, amped, base)

	bearish := MomentumInputs{
		RSI:         RSIResult{Value: 40, IsValid: true},
		Close:       100,
		VolumeRatio: 2.0,
	}
	baseDown := CalculateMomentum(MomentumInputs{RSI: bearish.RSI, Close: 100, VolumeRatio: 1.0})
	ampedDown := CalculateMomentum(bearish)
	assert.Less(t, ampedDown, baseDown)
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	assert.InDelta(t, 10.0, Percentile(values, 0), 1e-9)
	assert.InDelta(t, 100.0, Percentile(values, 100), 1e-9)
	assert.InDelta(t, 19.0, Percentile(values, 10), 1e-9)
	assert.InDelta(t, 91.0, Percentile(values, 90), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}
