//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// MinMaxBuiltin suggests the min/max builtins over float conversions through
// the math package.
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b)").
		Suggest("max($a, $b)")
}

// RangeOverInteger suggests range-over-int loops.
func RangeOverInteger(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $n; $i++ { $*body }`).
		Where(m["n"].Type.Is("int") && m["n"].Pure).
		Report("use for $i := range $n")
}

// SlicesClone suggests slices.Clone for copying sample buffers.
func SlicesClone(m dsl.Matcher) {
	m.Match(`append([]$t(nil), $s...)`, `append([]$t{}, $s...)`).
		Report("use slices.Clone($s)").
		Suggest("slices.Clone($s)")
}

// WaitGroupGo suggests sync.WaitGroup.Go for worker pools (Go 1.25+).
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("sync.WaitGroup") || m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $body })")
}
