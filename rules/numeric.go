//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// SquareWithPow flags math.Pow with a constant exponent of 2 or 3 in hot
// numeric code. The likelihood and waveform loops run these per frequency bin.
func SquareWithPow(m dsl.Matcher) {
	m.Match(`math.Pow($x, 2)`).
		Where(m["x"].Pure).
		Report("use $x * $x instead of math.Pow($x, 2)").
		Suggest("$x * $x")

	m.Match(`math.Pow($x, 3)`).
		Where(m["x"].Pure).
		Report("use $x * $x * $x instead of math.Pow($x, 3)").
		Suggest("$x * $x * $x")

	m.Match(`math.Pow($x, 0.5)`).
		Report("use math.Sqrt($x)").
		Suggest("math.Sqrt($x)")
}

// LogOfExp catches round trips through exp that overflow for large
// log-likelihoods.
func LogOfExp(m dsl.Matcher) {
	m.Match(`math.Log(math.Exp($x))`).
		Report("math.Log(math.Exp($x)) overflows for large $x; use $x").
		Suggest("$x")

	m.Match(`math.Log(math.Exp($a) + math.Exp($b))`).
		Report("sum of exponentials overflows; use a log-sum-exp (floats.LogSumExp)")
}

// SeededRandomness flags time-seeded or global random sources. Every draw
// in a run comes from a rand.Source derived from main.seed so runs are
// reproducible.
func SeededRandomness(m dsl.Matcher) {
	m.Match(
		`rand.NewPCG(uint64(time.Now().UnixNano()), $_)`,
		`rand.NewPCG($_, uint64(time.Now().UnixNano()))`,
	).
		Report("derive the PCG seed from main.seed, not the wall clock")

	m.Match(`rand.Float64()`, `rand.NormFloat64()`, `rand.IntN($_)`).
		Where(m.File().Imports("math/rand/v2") && m.File().PkgPath.Matches(`/internal/(sampler|detector|prior)`)).
		Report("use the run's *rand.Rand instead of the global source")
}
