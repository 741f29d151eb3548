package ecdf

import "math"

// nint rounds to the nearest integer, rounding half integers to the
// nearest even integer.
func nint(x float64) int64 {
	var i int64
	if !math.Signbit(x) {
		i = int64(x + 0.5)
		if i&1 != 0 && x-math.Trunc(x) == 0.5 {
			i--
		}
	} else {
		i = int64(x - 0.5)
		if i&1 != 0 && x-math.Trunc(x) == -0.5 {
			i++
		}
	}
	return i
}

// kprob calculates the Kolmogorov distribution function, the probability
// that the Kolmogorov test statistic exceeds z under the null hypothesis.
//
// For a one-sample test z = dn*sqrt(n); to compare two samples with n and
// m events use z = dn*sqrt(n*m/(n+m)), where dn is the maximum deviation
// between the two distribution functions. Probabilities below 1e-15 are
// returned as zero.
//
// Ported from TMath::KolmogorovProb in CERN's ROOT framework.
func kprob(z float64) float64 {
	switch {
	case z < 0.2:
		return 1
	case z < 0.755:
		const w = 2.50662827
		// c1 = -pi**2/8, c2 = 9*c1, c3 = 25*c1
		const c1 = -1.2337005501361697
		const c2 = -11.103304951225528
		const c3 = -30.842513753404244
		v := 1 / (z * z)
		return 1 - w*(math.Exp(c1*v)+math.Exp(c2*v)+math.Exp(c3*v))/z
	case z < 6.8116:
		fj := [4]float64{-2, -8, -18, -32}
		var r [4]float64
		v := z * z
		maxj := nint(3 / z)
		if maxj < 1 {
			maxj = 1
		}
		for j := int64(0); j < maxj; j++ {
			r[j] = math.Exp(fj[j] * v)
		}
		return 2 * (r[0] - r[1] + r[2] - r[3])
	default:
		return 0
	}
}
