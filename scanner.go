package provision

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

// Candidate is one unconfigured device's provisioning access point as seen
// in a single scan cycle. Candidates are ephemeral: a provisioned device
// simply stops advertising and vanishes from the next scan.
type Candidate struct {
	SSID string
}

// Scanner produces the current candidate set, ordered by discovery and
// de-duplicated.
type Scanner interface {
	Scan(ctx context.Context) ([]Candidate, error)
}

var vendorSSIDRegexp = regexp.MustCompile(VendorSSIDPattern)

// WifiScanner discovers provisioning APs on one wireless interface through
// NetworkManager.
type WifiScanner struct {
	client *nmcli.Client
	ifname string
}

// NewWifiScanner returns a Scanner bound to the given interface.
func NewWifiScanner(client *nmcli.Client, ifname string) *WifiScanner {
	return &WifiScanner{client: client, ifname: ifname}
}

// Scan triggers a fresh wireless scan and filters the visible SSIDs by the
// vendor pattern. Scan failures are soft: they log a warning and yield an
// empty candidate set, which the orchestrator treats as "nothing found this
// cycle".
func (s *WifiScanner) Scan(ctx context.Context) ([]Candidate, error) {
	if err := s.client.Rescan(ctx, s.ifname); err != nil {
		// A rescan request is frequently rejected while the radio is busy;
		// the subsequent list still returns the last known results.
		log.Debug().Err(err).Str("ifname", s.ifname).Msg("wifi rescan request rejected")
	}
	ssids, err := s.client.VisibleSSIDs(ctx, s.ifname)
	if err != nil {
		log.Warn().Err(err).Str("ifname", s.ifname).Msg("wifi scan failed, treating as empty")
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ssids))
	var candidates []Candidate
	for _, ssid := range ssids {
		if !vendorSSIDRegexp.MatchString(ssid) {
			continue
		}
		if _, dup := seen[ssid]; dup {
			continue
		}
		seen[ssid] = struct{}{}
		candidates = append(candidates, Candidate{SSID: ssid})
	}
	log.Debug().Int("visible", len(ssids)).Int("candidates", len(candidates)).
		Str("ifname", s.ifname).Msg("scan cycle discovery")
	return candidates, nil
}
