// Package nmcli wraps the NetworkManager command line tool behind a small
// typed surface: one Runner interface for process execution and one method
// per operation the provisioning agent needs. All output parsing lives in
// parse.go so the brittle text handling stays isolated from callers.
package nmcli

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runner executes a single nmcli invocation and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// execRunner shells out to the real nmcli binary with a per-command timeout.
type execRunner struct {
	binary  string
	timeout time.Duration
}

// NewRunner returns a Runner backed by the nmcli binary on PATH. Every
// command is bounded by timeout so a wedged NetworkManager cannot stall the
// whole run.
func NewRunner(timeout time.Duration) Runner {
	return &execRunner{binary: "nmcli", timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.binary, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", errors.Wrapf(err, "nmcli %s: %s",
				strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", errors.Wrapf(err, "nmcli %s", strings.Join(args, " "))
	}
	return string(out), nil
}

// Client exposes the NetworkManager operations used by the agent.
type Client struct {
	run Runner
}

// NewClient wraps a Runner. Pass NewRunner for real use, a stub in tests.
func NewClient(r Runner) *Client {
	return &Client{run: r}
}

// Devices lists all NetworkManager-managed devices with type and state.
func (c *Client) Devices(ctx context.Context) ([]DeviceStatus, error) {
	out, err := c.run.Run(ctx, "--terse", "--fields", "DEVICE,TYPE,STATE", "device")
	if err != nil {
		return nil, errors.Wrap(err, "list devices")
	}
	return parseDeviceStatus(out), nil
}

// FirstWifiDevice returns the name of the first wifi-type device, or "" when
// the host has none.
func (c *Client) FirstWifiDevice(ctx context.Context) (string, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.Type == "wifi" {
			return d.Device, nil
		}
	}
	return "", nil
}

// ActiveConnections lists currently active connection profiles.
func (c *Client) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	out, err := c.run.Run(ctx, "--terse", "--fields", "NAME,UUID,TYPE,DEVICE",
		"connection", "show", "--active")
	if err != nil {
		return nil, errors.Wrap(err, "list active connections")
	}
	return parseActiveConnections(out), nil
}

// ConnectionSecrets reads the SSID and pre-shared key of a wifi profile.
// Requires NetworkManager to reveal secrets, which needs a privileged caller.
func (c *Client) ConnectionSecrets(ctx context.Context, name string) (WifiSecrets, error) {
	out, err := c.run.Run(ctx, "--show-secrets", "--terse", "--fields",
		"802-11-wireless.ssid,802-11-wireless-security.psk",
		"connection", "show", name)
	if err != nil {
		return WifiSecrets{}, errors.Wrapf(err, "read secrets of %q", name)
	}
	return parseWifiSecrets(out), nil
}

// Rescan asks the given wifi device to refresh its access point list.
func (c *Client) Rescan(ctx context.Context, ifname string) error {
	_, err := c.run.Run(ctx, "device", "wifi", "rescan", "ifname", ifname)
	return errors.Wrapf(err, "rescan on %s", ifname)
}

// VisibleSSIDs lists the SSIDs currently visible on the given device,
// without triggering another scan.
func (c *Client) VisibleSSIDs(ctx context.Context, ifname string) ([]string, error) {
	out, err := c.run.Run(ctx, "--terse", "--fields", "SSID",
		"device", "wifi", "list", "ifname", ifname, "--rescan", "no")
	if err != nil {
		return nil, errors.Wrapf(err, "list access points on %s", ifname)
	}
	return parseSSIDList(out), nil
}

// AddWifiConnection registers a WPA-PSK wifi profile bound to one device.
// The profile is never auto-connected; activation stays under caller control.
func (c *Client) AddWifiConnection(ctx context.Context, profile, ifname, ssid, psk string) error {
	_, err := c.run.Run(ctx,
		"connection", "add",
		"type", "wifi",
		"con-name", profile,
		"ifname", ifname,
		"autoconnect", "no",
		"ssid", ssid,
		"--",
		"wifi-sec.key-mgmt", "wpa-psk",
		"wifi-sec.psk", psk)
	return errors.Wrapf(err, "add connection %q", profile)
}

// UpConnection activates a profile and blocks until NetworkManager reports
// it up or the command times out.
func (c *Client) UpConnection(ctx context.Context, profile string, wait time.Duration) error {
	args := []string{"connection", "up", profile}
	if wait > 0 {
		secs := int(wait / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "--wait", strconv.Itoa(secs))
	}
	_, err := c.run.Run(ctx, args...)
	return errors.Wrapf(err, "activate connection %q", profile)
}

// DownConnection deactivates a profile.
func (c *Client) DownConnection(ctx context.Context, profile string) error {
	_, err := c.run.Run(ctx, "connection", "down", profile)
	return errors.Wrapf(err, "deactivate connection %q", profile)
}

// DeleteConnection removes a profile. Safe to call on an already-removed
// profile name; the resulting error is for the caller to log or ignore.
func (c *Client) DeleteConnection(ctx context.Context, profile string) error {
	_, err := c.run.Run(ctx, "connection", "delete", profile)
	if err != nil {
		log.Debug().Err(err).Str("profile", profile).Msg("nmcli delete reported an error")
	}
	return errors.Wrapf(err, "delete connection %q", profile)
}
