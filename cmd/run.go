package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	provision "github.com/sonoff-tools/ProvisionAgent"
	"github.com/sonoff-tools/ProvisionAgent/internal/config"
	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

func newRunCmd() *cobra.Command {
	var (
		flagIfname       string
		flagSSID         string
		flagPasswordFile string
		flagServerName   string
		flagServerPort   int
		flagDeployConfig string
		flagDeadline     time.Duration
		flagScanDelay    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full provisioning pass",
		Long: `Scans for provisioning access points and provisions every device found,
cycling until at least one device succeeds or the deadline elapses.
Exits 0 on a completed run (even with zero devices found); exits 1 when the
interface, infrastructure credentials, or management endpoint cannot be
resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := nmcli.NewClient(nmcli.NewRunner(
				config.Duration(config.EnvNmcliTimeout, provision.DefaultNmcliTimeout)))

			deployConfig := flagDeployConfig
			if deployConfig == "" {
				deployConfig = config.String(config.EnvDeployConfig, "")
			}
			env, err := provision.ResolveEnvironment(sigCtx, client, provision.ResolveOptions{
				Ifname:       flagIfname,
				InfraSSID:    flagSSID,
				PasswordFile: flagPasswordFile,
				ServerName:   flagServerName,
				ServerPort:   flagServerPort,
				DeployConfig: deployConfig,
			})
			if err != nil {
				return err
			}

			deadline := flagDeadline
			if deadline <= 0 {
				deadline = config.Duration(config.EnvDeadline, provision.DefaultDeadline)
			}
			scanDelay := flagScanDelay
			if scanDelay <= 0 {
				scanDelay = config.Duration(config.EnvScanDelay, provision.DefaultScanDelay)
			}

			orch, err := provision.NewOrchestrator(provision.OrchestratorConfig{
				Scanner: provision.NewWifiScanner(client, env.Ifname),
				Links: provision.NewNMLinkController(client, env.Ifname, provision.DefaultActivateWait),
				Handshake: provision.NewDeviceClient(provision.DeviceClientOptions{
					Timeout: config.Duration(config.EnvHTTPTimeout, provision.DefaultHTTPTimeout),
				}),
				Env:       env,
				Deadline:  deadline,
				ScanDelay: scanDelay,
			})
			if err != nil {
				return err
			}

			report, err := orch.Run(sigCtx)
			if err != nil {
				return err
			}
			log.Info().
				Int("provisioned", report.Succeeded).
				Int("link_failures", report.LinkEstablishFailed).
				Int("handshake_failures", report.HandshakeFailed).
				Int("teardown_failures", report.LinkTeardownFailed).
				Int("cycles", report.Cycles).
				Msg("run finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&flagIfname, "ifname", "", "Wireless interface (default: first wifi device)")
	cmd.Flags().StringVar(&flagSSID, "ssid", "", "Infrastructure network SSID (default: autodetect from the active connection)")
	cmd.Flags().StringVar(&flagPasswordFile, "password-file", "", "File holding the infrastructure pre-shared key (required with --ssid)")
	cmd.Flags().StringVar(&flagServerName, "server-name", "", "Management endpoint hostname (default: deploy config web-url)")
	cmd.Flags().IntVar(&flagServerPort, "server-port", 0, "Management endpoint port (default: from web-url or its scheme)")
	cmd.Flags().StringVar(&flagDeployConfig, "config", "", "Deploy config path (default: ~/.sonoff-deploy/config.ini)")
	cmd.Flags().DurationVar(&flagDeadline, "deadline", 0, "Overall run deadline (default: 120s)")
	cmd.Flags().DurationVar(&flagScanDelay, "scan-delay", 0, "Pause between empty scan cycles (default: 1s)")
	return cmd
}
