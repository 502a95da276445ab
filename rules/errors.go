//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// EnhancedErrors flags ad-hoc error construction in the pipeline stage
// packages.
//
// Errors leaving a stage package carry a component and a category so the
// pipeline can label stage failures and the telemetry reporter can tag them:
//
//	return errors.New(err).
//	    Component("detector").
//	    Category(errors.CategoryFileIO).
//	    Context("path", path).
//	    Build()
func EnhancedErrors(m dsl.Matcher) {
	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/(pipeline|detector|prior|likelihood|sampler|result|datastore|upload|notification|telemetry)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.Newf(...).Component(...).Category(...).Build() from internal/errors instead of fmt.Errorf")

	m.Match(`errors.New($s)`).
		Where(m["s"].Type.Is("string") && m.File().Imports("errors") && !m.File().Name.Matches(`_test\.go$`)).
		Report("import github.com/tphakala/gwpe/internal/errors and use errors.Newf($s) with a category")
}

// BuilderWithoutBuild catches an error builder that is returned or logged
// without the final Build call.
func BuilderWithoutBuild(m dsl.Matcher) {
	m.Match(`return $b.Category($c)`, `return $b.Component($c)`).
		Where(m["b"].Type.Is("*errors.ErrorBuilder")).
		Report("error builder is missing .Build()")
}

// CategoryCheck prefers errors.IsCategory over comparing the category string.
func CategoryCheck(m dsl.Matcher) {
	m.Match(`$e.GetCategory() == string($c)`).
		Report("use errors.IsCategory(err, $c)").
		Suggest("errors.IsCategory($e, $c)")
}
