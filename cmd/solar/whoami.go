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

	"github.com/spf13/cobra"

	"github.com/ssb-solar/solar/node"
	"github.com/ssb-solar/solar/refs"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print this node's public feed reference",
	Long: `Loads (or creates, on first run) the local identity named by the
configured secret path and prints its public feed reference, without
starting the node's listener or admin API.`,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("solar: load config: %w", err)
	}
	applyFlagOverrides(cfg)

	identity, err := node.LoadOrCreateIdentity(cfg.Identity.SecretPath)
	if err != nil {
		return fmt.Errorf("solar: load identity: %w", err)
	}

	fmt.Println(refs.NewFeedRef(identity.Public).Ref())
	return nil
}
