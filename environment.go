package provision

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

// Environment is the resolved, immutable input set of a provisioning run:
// where to scan, which network the devices should join, and which management
// endpoint they should report to. Assembled once at startup and passed into
// the orchestrator; nothing mutates it afterwards.
type Environment struct {
	Ifname     string
	InfraSSID  string
	InfraPSK   string
	ServerName string
	ServerPort int
}

// ResolveOptions carries the CLI-level overrides. Empty fields fall back to
// autodetection (interface, infrastructure credentials) or to the deploy
// config file (management endpoint).
type ResolveOptions struct {
	Ifname       string
	InfraSSID    string
	PasswordFile string
	ServerName   string
	ServerPort   int
	DeployConfig string
}

// ResolveEnvironment assembles the Environment. Any missing required input
// is an ErrPrecondition: the caller should exit rather than start a run that
// cannot provision anything.
func ResolveEnvironment(ctx context.Context, client *nmcli.Client, opts ResolveOptions) (Environment, error) {
	env := Environment{Ifname: strings.TrimSpace(opts.Ifname)}

	if env.Ifname == "" {
		ifname, err := client.FirstWifiDevice(ctx)
		if err != nil {
			return Environment{}, errors.Wrapf(ErrPrecondition, "detect wifi interface: %v", err)
		}
		env.Ifname = ifname
	}
	if env.Ifname == "" {
		return Environment{}, errors.Wrap(ErrPrecondition, "no wifi interface found and none given")
	}

	ssid, psk, err := resolveInfraCredentials(ctx, client, env.Ifname, opts)
	if err != nil {
		return Environment{}, err
	}
	env.InfraSSID, env.InfraPSK = ssid, psk

	host, port, err := resolveManagementEndpoint(opts)
	if err != nil {
		return Environment{}, err
	}
	env.ServerName, env.ServerPort = host, port

	log.Info().Str("ifname", env.Ifname).Str("ssid", env.InfraSSID).
		Str("server", env.ServerName).Int("port", env.ServerPort).
		Msg("environment resolved")
	return env, nil
}

// resolveInfraCredentials prefers explicit flags; otherwise it reads the
// SSID and PSK of the interface's currently active wifi connection.
func resolveInfraCredentials(ctx context.Context, client *nmcli.Client, ifname string, opts ResolveOptions) (string, string, error) {
	if ssid := strings.TrimSpace(opts.InfraSSID); ssid != "" {
		if opts.PasswordFile == "" {
			return "", "", errors.Wrap(ErrPrecondition, "--ssid given without --password-file")
		}
		psk, err := readPasswordFile(opts.PasswordFile)
		if err != nil {
			return "", "", errors.Wrapf(ErrPrecondition, "read password file: %v", err)
		}
		return ssid, psk, nil
	}

	conns, err := client.ActiveConnections(ctx)
	if err != nil {
		return "", "", errors.Wrapf(ErrPrecondition, "detect active connection: %v", err)
	}
	for _, conn := range conns {
		if conn.Device != ifname || conn.Type != "802-11-wireless" {
			continue
		}
		secrets, err := client.ConnectionSecrets(ctx, conn.Name)
		if err != nil {
			return "", "", errors.Wrapf(ErrPrecondition, "read credentials of %q: %v", conn.Name, err)
		}
		if secrets.SSID == "" || secrets.PSK == "" {
			return "", "", errors.Wrapf(ErrPrecondition, "connection %q has no usable wifi credentials", conn.Name)
		}
		log.Info().Str("connection", conn.Name).Str("ssid", secrets.SSID).
			Msg("infrastructure credentials autodetected")
		return secrets.SSID, secrets.PSK, nil
	}
	return "", "", errors.Wrapf(ErrPrecondition, "no active wifi connection on %s and no --ssid given", ifname)
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	psk := strings.TrimSpace(string(data))
	if psk == "" {
		return "", errors.Errorf("%s is empty", path)
	}
	return psk, nil
}

// resolveManagementEndpoint prefers explicit flags, then the deploy config
// file written by the deployment workflow.
func resolveManagementEndpoint(opts ResolveOptions) (string, int, error) {
	if host := strings.TrimSpace(opts.ServerName); host != "" {
		port := opts.ServerPort
		if port <= 0 {
			port = 443
		}
		return host, port, nil
	}

	path := opts.DeployConfig
	if path == "" {
		path = DefaultDeployConfigPath()
	}
	host, port, err := EndpointFromDeployConfig(path)
	if err != nil {
		return "", 0, errors.Wrapf(ErrPrecondition, "management endpoint: %v", err)
	}
	if opts.ServerPort > 0 {
		port = opts.ServerPort
	}
	return host, port, nil
}

// DefaultDeployConfigPath is where the deployment workflow records its
// endpoints: ~/.sonoff-deploy/config.ini.
func DefaultDeployConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sonoff-deploy", "config.ini")
	}
	return filepath.Join(home, ".sonoff-deploy", "config.ini")
}

// EndpointFromDeployConfig reads the deploy config: the default section's
// "app" key names the active deployment section, whose "web-url" yields the
// management host and port.
func EndpointFromDeployConfig(path string) (string, int, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return "", 0, errors.Wrapf(err, "load deploy config %s", path)
	}
	app := cfg.Section(ini.DefaultSection).Key("app").String()
	if app == "" {
		return "", 0, errors.Errorf("deploy config %s names no active app", path)
	}
	section, err := cfg.GetSection(app)
	if err != nil {
		return "", 0, errors.Wrapf(err, "deploy config %s has no section %q", path, app)
	}
	webURL := section.Key("web-url").String()
	if webURL == "" {
		return "", 0, errors.Errorf("deploy config section %q has no web-url", app)
	}
	return EndpointFromURL(webURL)
}

// EndpointFromURL extracts host and port from a web URL, defaulting the port
// from the scheme (http → 80, https → 443). Pure and idempotent.
func EndpointFromURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, errors.Wrapf(err, "parse web-url %q", raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, errors.Errorf("web-url %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, errors.Wrapf(err, "web-url %q has a bad port", raw)
		}
		return host, port, nil
	}
	switch u.Scheme {
	case "http":
		return host, 80, nil
	case "https":
		return host, 443, nil
	default:
		return "", 0, errors.Errorf("web-url %q has scheme %q without a known default port", raw, u.Scheme)
	}
}
