package main

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	defaultListenHost = "0.0.0.0"
	defaultListenPort = 40000
)

// flags assembles the host's CLI flags, each sourced (in priority order)
// from an explicit command-line value, an environment variable, or the
// TOML config file at configFilePath — the same layering the teacher uses
// for every one of its own subsystems' flags.
func flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "listen-host",
			Usage: "network address to bind the CCP host's listener to",
			Value: defaultListenHost,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("CCP_LISTEN_HOST"),
				toml.TOML("listen.host", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "listen-port",
			Usage: "TCP port the CCP host's listener binds to",
			Value: defaultListenPort,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("CCP_LISTEN_PORT"),
				toml.TOML("listen.port", configFilePath),
			),
			Validator: validatePort,
		},
		&cli.StringSliceFlag{
			Name:  "whitelist",
			Usage: "comma-separated list of peer IP addresses allowed to connect",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("CCP_WHITELIST"),
				toml.TOML("listen.whitelist", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "use human-readable logging instead of JSON",
		},
	}
}

func validatePort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("listen-port must be between 1 and 65535, got %d", p)
	}
	return nil
}

// parseWhitelist splits the comma-separated CLI/env form of the whitelist
// flag, in addition to the native string-slice form the TOML file allows.
func parseWhitelist(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, ip := range strings.Split(entry, ",") {
			ip = strings.TrimSpace(ip)
			if ip != "" {
				out = append(out, ip)
			}
		}
	}
	return out
}
