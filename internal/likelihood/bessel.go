package likelihood

import "math"

// logI0 returns ln I0(x), the log of the modified Bessel function of the
// first kind of order zero, using the Abramowitz and Stegun 9.8.1 and 9.8.2
// polynomial fits (relative error below 2e-7).
func logI0(x float64) float64 {
	x = math.Abs(x)
	if x <= 3.75 {
		t := x / 3.75
		t2 := t * t
		return math.Log(1 + t2*(3.5156229+t2*(3.0899424+t2*(1.2067492+
			t2*(0.2659732+t2*(0.0360768+t2*0.0045813))))))
	}
	t := 3.75 / x
	poly := 0.39894228 + t*(0.01328592+t*(0.00225319+t*(-0.00157565+
		t*(0.00916281+t*(-0.02057706+t*(0.02635537+t*(-0.01647633+t*0.00392377)))))))
	return x - 0.5*math.Log(x) + math.Log(poly)
}
