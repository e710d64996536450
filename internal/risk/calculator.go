package risk

import (
	"fmt"
	"math"
)

// Annualization factor assumes daily-granularity returns
const tradingDaysPerYear = 252.0

// SharpeRatio computes the annualized Sharpe ratio from a return
// series using sample variance.
func SharpeRatio(returns []float64, riskFreeRate float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("returns array is empty")
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0, fmt.Errorf("standard deviation is zero")
	}

	annualizedReturn := mean * tradingDaysPerYear
	annualizedStdDev := stdDev * math.Sqrt(tradingDaysPerYear)
	return (annualizedReturn - riskFreeRate) / annualizedStdDev, nil
}

// Drawdown computes current and maximum drawdown fractions over an
// equity curve, plus the peak equity seen.
func Drawdown(equityCurve []float64) (currentDD, maxDD, peak float64) {
	if len(equityCurve) == 0 {
		return 0, 0, 0
	}

	peak = equityCurve[0]
	current := equityCurve[len(equityCurve)-1]

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	if current < peak && peak > 0 {
		currentDD = (peak - current) / peak
	}
	return currentDD, maxDD, peak
}
