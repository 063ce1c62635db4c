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

func TestValidateValid(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	issues := Validate(cfg)
	for _, iss := range issues {
		if iss.Level == "error" {
			t.Errorf("unexpected error-level issue on defaulted config: %+v", iss)
		}
	}
}

func TestValidateEmptyRequiredFields(t *testing.T) {
	cfg := &Config{}
	issues := Validate(cfg)

	var gotListenAddr, gotDataDir, gotSecretPath bool
	for _, iss := range issues {
		switch iss.Field {
		case "network.listen_addr":
			gotListenAddr = true
		case "data.dir":
			gotDataDir = true
		case "identity.secret_path":
			gotSecretPath = true
		}
	}
	if !gotListenAddr || !gotDataDir || !gotSecretPath {
		t.Errorf("expected error issues for empty required fields, got %+v", issues)
	}
}

func TestValidateAdminPortCollision(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Admin.Enabled = true
	cfg.Admin.ListenAddr = cfg.Network.ListenAddr

	issues := Validate(cfg)
	found := false
	for _, iss := range issues {
		if iss.Field == "admin.listen_addr" && iss.Level == "error" {
			found = true
		}
	}
	if !found {
		t.Error("expected error for admin/network listen_addr collision")
	}
}

func TestValidateAdminWithoutJWTWarns(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Admin.Enabled = true
	cfg.Admin.ListenAddr = ":3031"

	issues := Validate(cfg)
	found := false
	for _, iss := range issues {
		if iss.Field == "admin.jwt_secret_env" && iss.Level == "warning" {
			found = true
		}
	}
	if !found {
		t.Error("expected warning for admin enabled without JWT secret env")
	}
}
