// Package devicetest provides implementation-agnostic conformance tests for
// devices driven by the control service.
package devicetest

import (
	"fmt"
	"sync"
	"testing"
)

// Controller is the capability surface the control service relies on.
type Controller interface {
	ApplySettings(frequencyMHz, gainDB float64) (bool, string)
	Status() string
}

// Disconnector is implemented by devices that can drop their session. The
// precondition checks only run for those.
type Disconnector interface {
	Disconnect()
}

// Expectations describes the status texts an implementation produces.
type Expectations struct {
	// IdleStatus is the status right after connect, before any settings.
	IdleStatus string
	// OperatingStatus composes the status for an accepted frequency/gain pair.
	OperatingStatus func(frequencyMHz, gainDB float64) string
	// Concurrency is the number of parallel callers in the isolation check.
	Concurrency int
}

// RunConformance runs the conformance suite. newDevice must return a freshly
// connected device for every call.
func RunConformance(t *testing.T, newDevice func() Controller, exp Expectations) {
	t.Helper()
	if exp.Concurrency <= 0 {
		exp.Concurrency = 32
	}

	t.Run("IdleStatusAfterConnect", func(t *testing.T) {
		d := newDevice()
		if got := d.Status(); got != exp.IdleStatus {
			t.Errorf("Expected status %q, got %q", exp.IdleStatus, got)
		}
	})

	t.Run("StatusComposition", func(t *testing.T) {
		testStatusComposition(t, newDevice, exp)
	})

	t.Run("MutationPrecondition", func(t *testing.T) {
		testMutationPrecondition(t, newDevice)
	})

	t.Run("ConcurrencyIsolation", func(t *testing.T) {
		testConcurrencyIsolation(t, newDevice, exp)
	})
}

func testStatusComposition(t *testing.T, newDevice func() Controller, exp Expectations) {
	pairs := []struct {
		name string
		freq float64
		gain float64
	}{
		{"zero", 0, 0},
		{"broadcast", 99.9, 15.5},
		{"negative", -120.25, -3.5},
		{"fractional", 0.001, 0.125},
		{"large", 5800, 60},
	}

	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			d := newDevice()
			ok, status := d.ApplySettings(p.freq, p.gain)
			if !ok {
				t.Fatalf("ApplySettings(%v, %v) failed on a connected device", p.freq, p.gain)
			}
			want := exp.OperatingStatus(p.freq, p.gain)
			if status != want {
				t.Errorf("Expected status %q, got %q", want, status)
			}
			if got := d.Status(); got != want {
				t.Errorf("Status() = %q after apply, want %q", got, want)
			}
		})
	}
}

func testMutationPrecondition(t *testing.T, newDevice func() Controller) {
	d := newDevice()
	disc, ok := d.(Disconnector)
	if !ok {
		t.Skip("device cannot disconnect")
	}
	disc.Disconnect()
	before := d.Status()

	for _, v := range []float64{0, 1, -1, 433.92} {
		ok, status := d.ApplySettings(v, v)
		if ok {
			t.Errorf("ApplySettings(%v, %v) succeeded on a disconnected device", v, v)
		}
		if status != before {
			t.Errorf("Status changed while disconnected: %q -> %q", before, status)
		}
	}
}

func testConcurrencyIsolation(t *testing.T, newDevice func() Controller, exp Expectations) {
	d := newDevice()
	n := exp.Concurrency

	valid := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		valid[exp.OperatingStatus(pairFor(i))] = true
	}

	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			freq, gain := pairFor(i)
			ok, status := d.ApplySettings(freq, gain)
			if !ok {
				errs <- fmt.Sprintf("caller %d: apply failed", i)
				return
			}
			if want := exp.OperatingStatus(freq, gain); status != want {
				errs <- fmt.Sprintf("caller %d: got %q, want %q", i, status, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}

	if final := d.Status(); !valid[final] {
		t.Errorf("Final status %q does not match any single caller's pair", final)
	}
}

func pairFor(i int) (float64, float64) {
	return 100 + float64(i), float64(i) / 2
}
