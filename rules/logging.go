//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StructuredLogging flags printing from library code. Internal packages log
// through logger.Logger with typed fields so the JSON run log stays
// parseable; only cmd/ writes to stdout.
func StructuredLogging(m dsl.Matcher) {
	m.Match(
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Print($*_)`,
		`fmt.Printf($*_)`,
		`fmt.Println($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the module logger (log.Info(msg, logger.String(...))) instead of printing")
}

// UntypedLogField prefers typed field constructors over logger.Any for
// scalar values.
func UntypedLogField(m dsl.Matcher) {
	m.Match(`logger.Any($k, $v)`).
		Where(m["v"].Type.Is("float64")).
		Report("use logger.Float64($k, $v)").
		Suggest("logger.Float64($k, $v)")

	m.Match(`logger.Any($k, $v)`).
		Where(m["v"].Type.Is("int")).
		Report("use logger.Int($k, $v)").
		Suggest("logger.Int($k, $v)")

	m.Match(`logger.Any($k, $v)`).
		Where(m["v"].Type.Is("string")).
		Report("use logger.String($k, $v)").
		Suggest("logger.String($k, $v)")

	m.Match(`logger.Any($k, $v)`).
		Where(m["v"].Type.Is("error")).
		Report("use logger.Error($v)").
		Suggest("logger.Error($v)")
}
