package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBarNonTTY(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(3, "Pouring bottles")
	p.SetWriter(&buf)

	p.Step()
	p.Step()
	if buf.Len() != 0 {
		t.Errorf("non-TTY bar emitted before completion: %q", buf.String())
	}

	p.Step()
	out := buf.String()
	if !strings.Contains(out, "100%") || !strings.Contains(out, "Pouring bottles") {
		t.Errorf("completion line = %q", out)
	}
	if got := strings.Count(out, "\n"); got != 1 {
		t.Errorf("completion emitted %d lines, want 1", got)
	}

	// Finish after the last Step must not duplicate the line.
	p.Finish()
	if buf.String() != out {
		t.Errorf("Finish() duplicated output: %q", buf.String())
	}
}

func TestProgressBarFinishWithoutSteps(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(5, "Fetching")
	p.SetWriter(&buf)

	p.Finish()
	out := buf.String()
	if !strings.Contains(out, "100%") {
		t.Errorf("Finish() did not complete the bar: %q", out)
	}
	if got := strings.Count(out, "\n"); got != 1 {
		t.Errorf("Finish() emitted %d lines, want 1", got)
	}
}

func TestProgressBarStepClamps(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(1, "x")
	p.SetWriter(&buf)

	p.Step()
	before := buf.String()
	p.Step()
	p.Step()
	if buf.String() != before {
		t.Errorf("steps past total changed output: %q", buf.String())
	}
}

func TestSpinnerNonTTY(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("Scanning cellar")
	s.SetWriter(&buf)

	s.Start()
	if got := buf.String(); got != "Scanning cellar...\n" {
		t.Errorf("Start() output = %q", got)
	}

	s.Stop()
	if got := buf.String(); got != "Scanning cellar...\n" {
		t.Errorf("Stop() added output on non-TTY: %q", got)
	}
}

func TestSpinnerStopWithMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("Building")
	s.SetWriter(&buf)

	s.Start()
	s.StopWithMessage("Built in 3.2s")
	if !strings.Contains(buf.String(), "Built in 3.2s") {
		t.Errorf("final message missing: %q", buf.String())
	}
}

func TestSpinnerDoubleStartAndStop(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("Working")
	s.SetWriter(&buf)

	s.Start()
	s.Start()
	if got := strings.Count(buf.String(), "Working...\n"); got != 1 {
		t.Errorf("double Start printed %d times", got)
	}
	s.Stop()
	s.Stop()
}
