package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	provision "github.com/sonoff-tools/ProvisionAgent"
	"github.com/sonoff-tools/ProvisionAgent/internal/config"
	"github.com/sonoff-tools/ProvisionAgent/internal/nmcli"
)

func newScanCmd() *cobra.Command {
	var flagIfname string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single discovery pass and print matching candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := nmcli.NewClient(nmcli.NewRunner(
				config.Duration(config.EnvNmcliTimeout, provision.DefaultNmcliTimeout)))

			ifname := strings.TrimSpace(flagIfname)
			if ifname == "" {
				detected, err := client.FirstWifiDevice(ctx)
				if err != nil {
					return err
				}
				ifname = detected
			}
			if ifname == "" {
				return errors.New("no wifi interface found and none given")
			}

			candidates, err := provision.NewWifiScanner(client, ifname).Scan(ctx)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("no provisioning access points visible")
				return nil
			}
			for _, c := range candidates {
				fmt.Println(c.SSID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagIfname, "ifname", "", "Wireless interface (default: first wifi device)")
	return cmd
}
