package indicators

import (
	"errors"
	"math"

	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// ErrInsufficientData is returned when fewer candles are supplied than the
// indicator period requires.
var ErrInsufficientData = errors.New("insufficient data for indicator calculation")

// SMA is the simple moving average of closing prices.
type SMA struct {
	period int
}

func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < s.period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(data) - s.period; i < len(data); i++ {
		sum += data[i].Close
	}
	return sum / float64(s.period), nil
}

// EMA is the exponential moving average of closing prices, seeded with the
// SMA of the first period.
type EMA struct {
	period int
	alpha  float64
}

func NewEMA(period int) *EMA {
	return &EMA{period: period, alpha: 2.0 / float64(period+1)}
}

func (e *EMA) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < e.period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := 0; i < e.period; i++ {
		sum += data[i].Close
	}
	ema := sum / float64(e.period)
	for i := e.period; i < len(data); i++ {
		ema = data[i].Close*e.alpha + ema*(1-e.alpha)
	}
	return ema, nil
}

// ATR is the average true range over the trailing period.
type ATR struct {
	period int
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < a.period+1 {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(data) - a.period; i < len(data); i++ {
		sum += trueRange(data[i], data[i-1])
	}
	return sum / float64(a.period), nil
}

func trueRange(current, previous types.OHLCV) float64 {
	tr := current.High - current.Low
	tr = math.Max(tr, math.Abs(current.High-previous.Close))
	return math.Max(tr, math.Abs(current.Low-previous.Close))
}

// ADX measures trend strength on a 0-100 scale using Wilder's smoothing.
// Values above ~20 indicate a trending market.
type ADX struct {
	period int
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < a.period*2+1 {
		return 0, ErrInsufficientData
	}

	var trSum, plusDMSum, minusDMSum float64
	dxValues := make([]float64, 0, len(data))

	for i := 1; i < len(data); i++ {
		upMove := data[i].High - data[i-1].High
		downMove := data[i-1].Low - data[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(data[i], data[i-1])

		if i <= a.period {
			trSum += tr
			plusDMSum += plusDM
			minusDMSum += minusDM
			if i < a.period {
				continue
			}
		} else {
			// Wilder's smoothing.
			trSum = trSum - trSum/float64(a.period) + tr
			plusDMSum = plusDMSum - plusDMSum/float64(a.period) + plusDM
			minusDMSum = minusDMSum - minusDMSum/float64(a.period) + minusDM
		}

		if trSum == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		plusDI := 100 * plusDMSum / trSum
		minusDI := 100 * minusDMSum / trSum
		if plusDI+minusDI == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		dx := 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		dxValues = append(dxValues, dx)
	}

	if len(dxValues) < a.period {
		return 0, ErrInsufficientData
	}

	adx := 0.0
	for i := 0; i < a.period; i++ {
		adx += dxValues[i]
	}
	adx /= float64(a.period)
	for i := a.period; i < len(dxValues); i++ {
		adx = (adx*float64(a.period-1) + dxValues[i]) / float64(a.period)
	}
	return adx, nil
}
