package provision

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

// stubRunner maps nmcli argument substrings to canned outputs. The first
// registered pattern contained in the joined argument string wins.
type stubRunner struct {
	calls   [][]string
	outputs map[string]string
	errs    map[string]error
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (r *stubRunner) Run(ctx context.Context, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	joined := strings.Join(args, " ")
	for pattern, err := range r.errs {
		if strings.Contains(joined, pattern) {
			return "", err
		}
	}
	for pattern, out := range r.outputs {
		if strings.Contains(joined, pattern) {
			return out, nil
		}
	}
	return "", nil
}

// Scenario A: only SSIDs matching the vendor pattern become candidates.
func TestWifiScannerFiltersByVendorPattern(t *testing.T) {
	runner := newStubRunner()
	runner.outputs["device wifi list"] = "ITEAD-1000011af2\nSomeOtherAP\n"

	scanner := NewWifiScanner(nmcli.NewClient(runner), "wlan0")
	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].SSID != "ITEAD-1000011af2" {
		t.Fatalf("candidate = %q, want ITEAD-1000011af2", candidates[0].SSID)
	}
}

func TestWifiScannerRejectsNearMisses(t *testing.T) {
	runner := newStubRunner()
	runner.outputs["device wifi list"] = strings.Join([]string{
		"ITEAD-1000011AF2",  // uppercase hex
		"ITEAD-1000011af",   // too short
		"ITEAD-1000011af2x", // trailing junk
		"XITEAD-1000011af2", // leading junk
		"ITEAD-1000011af2",  // the real thing
	}, "\n")

	scanner := NewWifiScanner(nmcli.NewClient(runner), "wlan0")
	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].SSID != "ITEAD-1000011af2" {
		t.Fatalf("candidates = %+v, want exactly ITEAD-1000011af2", candidates)
	}
}

func TestWifiScannerDeduplicatesPreservingOrder(t *testing.T) {
	runner := newStubRunner()
	runner.outputs["device wifi list"] = strings.Join([]string{
		"ITEAD-1000022bc3",
		"ITEAD-1000011af2",
		"ITEAD-1000022bc3", // same AP seen on two bands
	}, "\n")

	scanner := NewWifiScanner(nmcli.NewClient(runner), "wlan0")
	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	want := []string{"ITEAD-1000022bc3", "ITEAD-1000011af2"}
	if len(candidates) != len(want) {
		t.Fatalf("candidates = %+v, want %v", candidates, want)
	}
	for i, ssid := range want {
		if candidates[i].SSID != ssid {
			t.Fatalf("candidates[%d] = %q, want %q", i, candidates[i].SSID, ssid)
		}
	}
}

// Scan failures are soft: an empty candidate set, not an error.
func TestWifiScannerFailsSoftOnListError(t *testing.T) {
	runner := newStubRunner()
	runner.errs["device wifi list"] = errors.New("wifi radio disabled")

	scanner := NewWifiScanner(nmcli.NewClient(runner), "wlan0")
	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v, want soft failure", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %+v, want none", candidates)
	}
}

// A rejected rescan request still lists the last known results.
func TestWifiScannerIgnoresRescanError(t *testing.T) {
	runner := newStubRunner()
	runner.errs["device wifi rescan"] = errors.New("scan already in progress")
	runner.outputs["device wifi list"] = "ITEAD-1000011af2\n"

	scanner := NewWifiScanner(nmcli.NewClient(runner), "wlan0")
	candidates, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
}
