package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	if ee.Err.Error() != "test error" {
		t.Errorf("Expected error message 'test error', got '%s'", ee.Err.Error())
	}
	if ee.GetComponent() != ComponentUnknown {
		t.Errorf("Expected component 'unknown' in fast path, got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryGeneric {
		t.Errorf("Expected category 'generic' in fast path, got '%s'", ee.Category)
	}
}

func TestBuilderSetsFields(t *testing.T) {
	t.Parallel()

	ee := Newf("prior %q has minimum >= maximum", "mass_ratio").
		Component("prior").
		Category(CategoryPrior).
		Priority(PriorityHigh).
		ParameterContext("mass_ratio", 1.5).
		Build()

	if ee.GetComponent() != "prior" {
		t.Errorf("Expected component 'prior', got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryPrior {
		t.Errorf("Expected category 'prior', got '%s'", ee.Category)
	}
	if ee.GetPriority() != PriorityHigh {
		t.Errorf("Expected priority 'high', got '%s'", ee.GetPriority())
	}
	ctx := ee.GetContext()
	if ctx["parameter"] != "mass_ratio" || ctx["value"] != 1.5 {
		t.Errorf("Unexpected context: %v", ctx)
	}
	if !strings.Contains(ee.Error(), "mass_ratio") {
		t.Errorf("Expected message to mention parameter, got %q", ee.Error())
	}
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	if ee.Priority != PriorityMedium {
		t.Errorf("Expected medium priority, got %q", ee.Priority)
	}
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Context("detector", "H1").Build()
	ctx := ee.GetContext()
	ctx["detector"] = "L1"

	if ee.GetContext()["detector"] != "H1" {
		t.Error("GetContext must not expose internal map")
	}
}

func TestTimingContext(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("disk full")).Timing("write_checkpoint", 1500*time.Millisecond).Build()
	ctx := ee.GetContext()
	if ctx["operation"] != "write_checkpoint" {
		t.Errorf("Expected operation 'write_checkpoint', got %v", ctx["operation"])
	}
	if ctx["duration_ms"] != int64(1500) {
		t.Errorf("Expected duration_ms 1500, got %v", ctx["duration_ms"])
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	missing := Newf("run %q not stored", "gw150914").Category(CategoryNotFound).Build()
	if !IsNotFound(fmt.Errorf("lookup: %w", missing)) {
		t.Error("Expected wrapped not-found error to match")
	}
	if IsNotFound(New(NewStd("x")).Category(CategoryFileIO).Build()) || IsNotFound(nil) {
		t.Error("Expected only not-found errors to match")
	}
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	t.Parallel()

	base := New(NewStd("noise curve missing")).Category(CategoryFileIO).Build()
	wrapped := fmt.Errorf("assemble network: %w", base)

	if !IsCategory(wrapped, CategoryFileIO) {
		t.Error("Expected wrapped error to carry file-io category")
	}
	if IsCategory(wrapped, CategoryPrior) {
		t.Error("Did not expect prior category")
	}
}

func TestIsMatchesSentinel(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(fmt.Errorf("context: %w", sentinel)).Build()
	if !Is(ee, sentinel) {
		t.Error("Expected Is to find wrapped sentinel")
	}
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg       string
		component string
		want      ErrorCategory
	}{
		{"write checkpoint failed", "sampler", CategoryCheckpoint},
		{"malformed row 3", "detector", CategoryFileParsing},
		{"open aligo.txt", "detector", CategoryFileIO},
		{"grid mismatch", "detector", CategoryValidation},
		{"likelihood is NaN", "sampler", CategorySampler},
		{"boom", "somewhere", CategoryGeneric},
	}

	for _, tt := range tests {
		if got := detectCategory(NewStd(tt.msg), tt.component); got != tt.want {
			t.Errorf("detectCategory(%q, %q) = %q, want %q", tt.msg, tt.component, got, tt.want)
		}
	}
}

func TestLookupComponent(t *testing.T) {
	t.Parallel()

	got := lookupComponent("github.com/tphakala/gwpe/internal/detector.LoadNoiseCurve")
	if got != "detector" {
		t.Errorf("Expected 'detector', got %q", got)
	}
	got = lookupComponent("github.com/other/pkg/thing.Func")
	if got != "thing" {
		t.Errorf("Expected fallback 'thing', got %q", got)
	}
}

func TestScrubPaths(t *testing.T) {
	t.Parallel()

	got := scrubPaths("open /home/alice/psd/aligo.txt: no such file")
	if strings.Contains(got, "alice") {
		t.Errorf("Path not scrubbed: %s", got)
	}
	if !strings.Contains(got, "aligo.txt") {
		t.Errorf("Base name lost: %s", got)
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	received []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestReporterReceivesErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("sampler diverged")).Component("sampler").Build()

	if len(reporter.received) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reporter.received))
	}
	if !ee.IsReported() {
		t.Error("Expected error to be marked reported")
	}
	if ee.Category != CategorySampler {
		t.Errorf("Expected detected category 'sampler', got %q", ee.Category)
	}
}
