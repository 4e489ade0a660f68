package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

func TestEndpointFromURL(t *testing.T) {
	cases := []struct {
		raw  string
		host string
		port int
	}{
		{"https://host/", "host", 443},
		{"http://host/", "host", 80},
		{"http://host:8080/", "host", 8080},
		{"https://mgmt.example.com:8443/api", "mgmt.example.com", 8443},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			// Port deduction is pure: two calls must agree.
			for i := 0; i < 2; i++ {
				host, port, err := EndpointFromURL(tc.raw)
				if err != nil {
					t.Fatalf("EndpointFromURL(%q) error: %v", tc.raw, err)
				}
				if host != tc.host || port != tc.port {
					t.Fatalf("EndpointFromURL(%q) = %s:%d, want %s:%d",
						tc.raw, host, port, tc.host, tc.port)
				}
			}
		})
	}
}

func TestEndpointFromURLRejectsUnusable(t *testing.T) {
	for _, raw := range []string{"", "ftp://host/", "https://"} {
		if _, _, err := EndpointFromURL(raw); err == nil {
			t.Fatalf("EndpointFromURL(%q) accepted an unusable URL", raw)
		}
	}
}

func writeDeployConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write deploy config: %v", err)
	}
	return path
}

func TestEndpointFromDeployConfig(t *testing.T) {
	path := writeDeployConfig(t, `
app = sonoff-prod

[sonoff-prod]
web-url = https://sonoff-prod.example.com/
git-url = git@example.com:sonoff-prod.git

[sonoff-staging]
web-url = http://sonoff-staging.example.com:8080/
git-url = git@example.com:sonoff-staging.git
`)
	host, port, err := EndpointFromDeployConfig(path)
	if err != nil {
		t.Fatalf("EndpointFromDeployConfig error: %v", err)
	}
	if host != "sonoff-prod.example.com" || port != 443 {
		t.Fatalf("endpoint = %s:%d, want sonoff-prod.example.com:443", host, port)
	}
}

func TestEndpointFromDeployConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, _, err := EndpointFromDeployConfig(filepath.Join(t.TempDir(), "absent.ini")); err == nil {
			t.Fatal("accepted a missing config file")
		}
	})
	t.Run("no active app", func(t *testing.T) {
		path := writeDeployConfig(t, "[sonoff-prod]\nweb-url = https://x.example.com/\n")
		if _, _, err := EndpointFromDeployConfig(path); err == nil {
			t.Fatal("accepted a config without an active app")
		}
	})
	t.Run("dangling section reference", func(t *testing.T) {
		path := writeDeployConfig(t, "app = gone\n")
		if _, _, err := EndpointFromDeployConfig(path); err == nil {
			t.Fatal("accepted a config referencing a missing section")
		}
	})
}

func TestResolveEnvironmentAutodetects(t *testing.T) {
	runner := newStubRunner()
	runner.outputs["DEVICE,TYPE,STATE device"] = "eth0:ethernet:connected\nwlan0:wifi:connected\n"
	runner.outputs["connection show --active"] = "HomeNet:5e4fa1aa-0000-4e22-9b2a-abcdef012345:802-11-wireless:wlan0\n"
	runner.outputs["802-11-wireless.ssid,802-11-wireless-security.psk"] =
		"802-11-wireless.ssid:HomeNet\n802-11-wireless-security.psk:hunter22\n"

	configPath := writeDeployConfig(t, `
app = sonoff-prod

[sonoff-prod]
web-url = https://mgmt.example.com/
`)
	env, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{
		DeployConfig: configPath,
	})
	if err != nil {
		t.Fatalf("ResolveEnvironment error: %v", err)
	}
	want := Environment{
		Ifname:     "wlan0",
		InfraSSID:  "HomeNet",
		InfraPSK:   "hunter22",
		ServerName: "mgmt.example.com",
		ServerPort: 443,
	}
	if env != want {
		t.Fatalf("environment = %+v, want %+v", env, want)
	}
}

func TestResolveEnvironmentPrefersOverrides(t *testing.T) {
	pskFile := filepath.Join(t.TempDir(), "psk")
	if err := os.WriteFile(pskFile, []byte("secret key\n"), 0o600); err != nil {
		t.Fatalf("write psk file: %v", err)
	}
	runner := newStubRunner() // no nmcli autodetection should be needed

	env, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{
		Ifname:       "wlp3s0",
		InfraSSID:    "Workshop",
		PasswordFile: pskFile,
		ServerName:   "mgmt.example.net",
		ServerPort:   8443,
	})
	if err != nil {
		t.Fatalf("ResolveEnvironment error: %v", err)
	}
	if env.Ifname != "wlp3s0" || env.InfraSSID != "Workshop" || env.InfraPSK != "secret key" {
		t.Fatalf("environment = %+v", env)
	}
	if env.ServerName != "mgmt.example.net" || env.ServerPort != 8443 {
		t.Fatalf("endpoint = %s:%d, want mgmt.example.net:8443", env.ServerName, env.ServerPort)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("nmcli invoked %d times despite full overrides", len(runner.calls))
	}
}

func TestResolveEnvironmentPreconditions(t *testing.T) {
	t.Run("no wifi interface", func(t *testing.T) {
		runner := newStubRunner()
		runner.outputs["DEVICE,TYPE,STATE device"] = "eth0:ethernet:connected\n"
		_, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{})
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("error = %v, want ErrPrecondition", err)
		}
	})

	t.Run("no active wifi connection", func(t *testing.T) {
		runner := newStubRunner()
		runner.outputs["DEVICE,TYPE,STATE device"] = "wlan0:wifi:disconnected\n"
		runner.outputs["connection show --active"] = ""
		_, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{})
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("error = %v, want ErrPrecondition", err)
		}
	})

	t.Run("ssid without password file", func(t *testing.T) {
		runner := newStubRunner()
		_, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{
			Ifname:    "wlan0",
			InfraSSID: "Workshop",
		})
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("error = %v, want ErrPrecondition", err)
		}
	})

	t.Run("missing deploy config", func(t *testing.T) {
		pskFile := filepath.Join(t.TempDir(), "psk")
		if err := os.WriteFile(pskFile, []byte("secret"), 0o600); err != nil {
			t.Fatalf("write psk file: %v", err)
		}
		runner := newStubRunner()
		_, err := ResolveEnvironment(context.Background(), nmcli.NewClient(runner), ResolveOptions{
			Ifname:       "wlan0",
			InfraSSID:    "Workshop",
			PasswordFile: pskFile,
			DeployConfig: filepath.Join(t.TempDir(), "absent.ini"),
		})
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("error = %v, want ErrPrecondition", err)
		}
	})
}
