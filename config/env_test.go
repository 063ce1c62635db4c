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

import "testing"

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SOLAR_TEST_VAR", "hello")

	cases := map[string]string{
		"${SOLAR_TEST_VAR}":          "hello",
		"${SOLAR_UNSET_VAR:default}": "default",
		"${SOLAR_UNSET_VAR}":         "",
		"no substitution here":       "no substitution here",
		"prefix-${SOLAR_TEST_VAR}":   "prefix-hello",
	}
	for in, want := range cases {
		if got := SubstituteEnvVars(in); got != want {
			t.Errorf("SubstituteEnvVars(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	t.Setenv("SOLAR_TEST_ADDR", ":6000")

	cfg := &Config{}
	cfg.Network.ListenAddr = "${SOLAR_TEST_ADDR}"
	SubstituteEnvVarsInConfig(cfg)

	if cfg.Network.ListenAddr != ":6000" {
		t.Errorf("ListenAddr = %q, want :6000", cfg.Network.ListenAddr)
	}
}

func TestSubstituteEnvVarsInConfigNil(t *testing.T) {
	// Must not panic on a nil config.
	SubstituteEnvVarsInConfig(nil)
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("SOLAR_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	if got := GetEnvironment(); got != "development" {
		t.Errorf("GetEnvironment() = %q, want development", got)
	}

	t.Setenv("SOLAR_ENV", "PRODUCTION")
	if got := GetEnvironment(); got != "production" {
		t.Errorf("GetEnvironment() = %q, want production", got)
	}
	if !IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Setenv("SOLAR_ENV", "local")
	t.Setenv("ENVIRONMENT", "")
	if !IsDevelopment() {
		t.Error("IsDevelopment() = false, want true for local")
	}
}
