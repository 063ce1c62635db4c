// Copyright (C) 2025 ssb-solar
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "solar",
	Short: "Solar - an embeddable Secure Scuttlebutt gossip node",
	Long: `Solar runs a single Secure Scuttlebutt identity: it listens for and
dials out to peers, replicates feeds per a selective or promiscuous
policy, and exposes a local JSON-RPC administration API.`,
	RunE: runServe,
}

var (
	flagConfig     string
	flagLAN        bool
	flagIP         string
	flagPort       int
	flagConnect    string
	flagReplicate  string
	flagNetworkKey string
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Path to a config file (YAML or JSON)")
	rootCmd.Flags().BoolVar(&flagLAN, "lan", false, "Broadcast and discover peers on the local network")
	rootCmd.Flags().StringVar(&flagIP, "ip", "", "IP address to listen on (default: all interfaces)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "TCP port to listen on (default: 8008)")
	rootCmd.Flags().StringVar(&flagConnect, "connect", "", "Multiserver address to dial on startup, e.g. tcp://host:port?shs=<base64-key>")
	rootCmd.Flags().StringVar(&flagReplicate, "replicate", "", "Path to a replication.toml file")
	rootCmd.Flags().StringVar(&flagNetworkKey, "network-key", "", "Base64-encoded capability key (default: the SSB main-net key)")

	// Commands are registered in their respective files:
	// - whoami.go: whoamiCmd
}
