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

package config

import "fmt"

// Issue describes one configuration problem found by Validate.
// Level is either "error" (Load refuses to start) or "warning"
// (logged but non-fatal).
type Issue struct {
	Field   string
	Message string
	Level   string
}

// Validate checks cfg for values that would prevent a node from
// starting, plus a few warnings for combinations that are legal but
// probably unintended.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Network.ListenAddr == "" {
		issues = append(issues, Issue{
			Field:   "network.listen_addr",
			Message: "must not be empty",
			Level:   "error",
		})
	}
	if cfg.Data.Dir == "" {
		issues = append(issues, Issue{
			Field:   "data.dir",
			Message: "must not be empty",
			Level:   "error",
		})
	}
	if cfg.Identity.SecretPath == "" {
		issues = append(issues, Issue{
			Field:   "identity.secret_path",
			Message: "must not be empty",
			Level:   "error",
		})
	}

	if cfg.Admin.Enabled && cfg.Admin.JWTSecretEnv == "" {
		issues = append(issues, Issue{
			Field:   "admin.jwt_secret_env",
			Message: "admin API is enabled but no JWT secret env var is configured; publish will accept unauthenticated calls",
			Level:   "warning",
		})
	}
	if cfg.Admin.Enabled && cfg.Admin.ListenAddr == cfg.Network.ListenAddr {
		issues = append(issues, Issue{
			Field:   "admin.listen_addr",
			Message: fmt.Sprintf("collides with network.listen_addr (%s)", cfg.Network.ListenAddr),
			Level:   "error",
		})
	}

	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		issues = append(issues, Issue{
			Field:   "logging.format",
			Message: fmt.Sprintf("unrecognized format %q, expected json or console", cfg.Logging.Format),
			Level:   "warning",
		})
	}

	return issues
}
