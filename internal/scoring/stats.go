package scoring

import (
	"errors"
	"fmt"
	"math"
)

const (
	betaRelTol  = 1e-10
	betaMaxIter = 200
)

// WelchResult is a two-sample t-test with unequal variances
type WelchResult struct {
	T      float64 `json:"t"`
	DF     float64 `json:"df"`
	PValue float64 `json:"pValue"`
	MeanA  float64 `json:"meanA"`
	MeanB  float64 `json:"meanB"`
	NA     int     `json:"nA"`
	NB     int     `json:"nB"`
}

// CohenResult is an effect size with its conventional label
type CohenResult struct {
	D     float64 `json:"d"`
	Label string  `json:"label"`
}

// ConfidenceInterval is a 95% interval for a sample mean
type ConfidenceInterval struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance uses the Bessel correction
func sampleVariance(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

// WelchT runs Welch's t-test with Welch-Satterthwaite degrees of
// freedom. Both samples need at least two observations.
func WelchT(a, b []float64) (*WelchResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return nil, errors.New("welch t-test requires at least 2 samples per group")
	}

	ma, mb := mean(a), mean(b)
	va, vb := sampleVariance(a, ma), sampleVariance(b, mb)
	na, nb := float64(len(a)), float64(len(b))

	sa, sb := va/na, vb/nb
	se := math.Sqrt(sa + sb)

	result := &WelchResult{MeanA: ma, MeanB: mb, NA: len(a), NB: len(b)}
	if se == 0 {
		if ma == mb {
			result.PValue = 1
			result.DF = na + nb - 2
			return result, nil
		}
		return nil, errors.New("welch t-test undefined for zero variance with unequal means")
	}

	result.T = (ma - mb) / se
	result.DF = (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))

	p, err := studentTwoTailedP(result.T, result.DF)
	if err != nil {
		return nil, err
	}
	result.PValue = p
	return result, nil
}

// studentTwoTailedP is P(|T| >= |t|) for T ~ t(df), via the identity
// p = I_{df/(df+t^2)}(df/2, 1/2).
func studentTwoTailedP(t, df float64) (float64, error) {
	if math.IsInf(t, 0) {
		return 0, nil
	}
	x := df / (df + t*t)
	return regularizedIncompleteBeta(df/2, 0.5, x)
}

// regularizedIncompleteBeta computes I_x(a, b) with the symmetry
// relation choosing the rapidly converging side of the continued
// fraction.
func regularizedIncompleteBeta(a, b, x float64) (float64, error) {
	if x <= 0 {
		return 0, nil
	}
	if x >= 1 {
		return 1, nil
	}

	lgA, _ := math.Lgamma(a)
	lgB, _ := math.Lgamma(b)
	lgAB, _ := math.Lgamma(a + b)
	front := math.Exp(lgAB - lgA - lgB + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		cf, err := betaContinuedFraction(a, b, x)
		if err != nil {
			return 0, err
		}
		return front * cf / a, nil
	}
	cf, err := betaContinuedFraction(b, a, 1-x)
	if err != nil {
		return 0, err
	}
	return 1 - front*cf/b, nil
}

// betaContinuedFraction evaluates the incomplete beta continued
// fraction with the modified Lentz method.
func betaContinuedFraction(a, b, x float64) (float64, error) {
	const tiny = 1e-30

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= betaMaxIter; m++ {
		fm := float64(m)
		m2 := 2 * fm

		// Even step
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		// Odd step
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < betaRelTol {
			return h, nil
		}
	}
	return 0, fmt.Errorf("incomplete beta did not converge within %d iterations", betaMaxIter)
}

// CohensD is the standardized mean difference with pooled standard
// deviation and the conventional magnitude labels.
func CohensD(a, b []float64) (*CohenResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return nil, errors.New("cohen's d requires at least 2 samples per group")
	}

	ma, mb := mean(a), mean(b)
	va, vb := sampleVariance(a, ma), sampleVariance(b, mb)
	na, nb := float64(len(a)), float64(len(b))

	pooled := math.Sqrt(((na-1)*va + (nb-1)*vb) / (na + nb - 2))
	if pooled == 0 {
		return &CohenResult{D: 0, Label: "negligible"}, nil
	}

	d := (ma - mb) / pooled
	return &CohenResult{D: d, Label: effectLabel(d)}, nil
}

func effectLabel(d float64) string {
	abs := math.Abs(d)
	switch {
	case abs < 0.2:
		return "negligible"
	case abs < 0.5:
		return "small"
	case abs < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// MeanCI is the 95% normal-approximation interval for a sample mean
func MeanCI(xs []float64) (ConfidenceInterval, error) {
	if len(xs) == 0 {
		return ConfidenceInterval{}, errors.New("confidence interval requires samples")
	}
	m := mean(xs)
	v := sampleVariance(xs, m)
	margin := 1.96 * math.Sqrt(v/float64(len(xs)))
	return ConfidenceInterval{Mean: m, Lower: m - margin, Upper: m + margin}, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
