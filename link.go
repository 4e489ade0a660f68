package provision

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

// Link is the handle of one temporary wireless profile bound to a single
// candidate. The profile name is derived deterministically from the SSID,
// so a stale profile from a failed earlier attempt is simply reused or
// overwritten on the next attempt for the same candidate.
type Link struct {
	Profile string
	SSID    string
	Ifname  string
}

// LinkController owns the lifecycle of provisioning links. Every Create must
// be paired with exactly one Destroy on every exit path; that pairing is the
// central resource-safety invariant of the orchestrator.
type LinkController interface {
	// Create registers the profile. The returned Link is valid for Destroy
	// even when Create itself fails, so cleanup can stay unconditional.
	Create(ctx context.Context, c Candidate) (Link, error)
	Activate(ctx context.Context, l Link) error
	Deactivate(ctx context.Context, l Link) error
	Destroy(ctx context.Context, l Link) error
}

// LinkProfileName derives the NetworkManager profile name for a candidate.
func LinkProfileName(c Candidate) string {
	return linkProfilePrefix + c.SSID
}

// NMLinkController drives provisioning links through NetworkManager. Only
// one link may be active per interface at a time; the orchestrator's
// sequential candidate processing guarantees that.
type NMLinkController struct {
	client       *nmcli.Client
	ifname       string
	activateWait time.Duration
}

// NewNMLinkController returns a LinkController for the given interface.
// activateWait bounds how long `connection up` blocks before the activation
// counts as failed.
func NewNMLinkController(client *nmcli.Client, ifname string, activateWait time.Duration) *NMLinkController {
	return &NMLinkController{client: client, ifname: ifname, activateWait: activateWait}
}

func (lc *NMLinkController) Create(ctx context.Context, c Candidate) (Link, error) {
	link := Link{Profile: LinkProfileName(c), SSID: c.SSID, Ifname: lc.ifname}
	err := lc.client.AddWifiConnection(ctx, link.Profile, lc.ifname, c.SSID, VendorPSK)
	if err != nil {
		return link, errors.Wrapf(ErrLinkCreate, "%s: %v", link.Profile, err)
	}
	log.Info().Str("profile", link.Profile).Str("ssid", c.SSID).Msg("provisioning link created")
	return link, nil
}

func (lc *NMLinkController) Activate(ctx context.Context, l Link) error {
	if err := lc.client.UpConnection(ctx, l.Profile, lc.activateWait); err != nil {
		return errors.Wrapf(ErrLinkActivate, "%s: %v", l.Profile, err)
	}
	log.Info().Str("profile", l.Profile).Msg("provisioning link active")
	return nil
}

func (lc *NMLinkController) Deactivate(ctx context.Context, l Link) error {
	if err := lc.client.DownConnection(ctx, l.Profile); err != nil {
		return errors.Wrapf(ErrLinkDeactivate, "%s: %v", l.Profile, err)
	}
	log.Info().Str("profile", l.Profile).Msg("provisioning link deactivated")
	return nil
}

func (lc *NMLinkController) Destroy(ctx context.Context, l Link) error {
	if err := lc.client.DeleteConnection(ctx, l.Profile); err != nil {
		return errors.Wrapf(ErrLinkDestroy, "%s: %v", l.Profile, err)
	}
	log.Info().Str("profile", l.Profile).Msg("provisioning link destroyed")
	return nil
}
