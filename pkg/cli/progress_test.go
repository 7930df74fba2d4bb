package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Probing")

	progress.Start(4)
	progress.Update(2)
	progress.Finish()

	output := buf.String()
	for _, want := range []string{"Probing: [", "2/4", "4/4", "]"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSimpleProgressClamps(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "")

	progress.Start(2)
	progress.Update(5)
	if !strings.Contains(buf.String(), "Progress: [") || !strings.Contains(buf.String(), "2/2") {
		t.Errorf("output = %q, want clamped 2/2 with default label", buf.String())
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing for zero total", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")

	progress.Start(100)
	progress.Error(fmt.Errorf("test error"))

	if !strings.Contains(buf.String(), "Error: test error") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Update(int64(start*100 + j))
			}
		}(i)
	}
	wg.Wait()
	progress.Finish()

	if !strings.Contains(buf.String(), "1000/1000") {
		t.Error("expected final progress output")
	}
}
