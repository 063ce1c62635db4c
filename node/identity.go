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

package node

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ssb-solar/solar/handshake"
)

// secretFile is the on-disk shape of a long-term identity: the feed
// reference and base64-encoded private key, matching the field names
// the wider SSB ecosystem's secret files use so existing tooling that
// reads one can read the other.
type secretFile struct {
	ID     string `toml:"id"`
	Secret string `toml:"secret"`
}

// LoadOrCreateIdentity reads the TOML identity secret file at path,
// creating a fresh Ed25519 keypair and writing it there (mode 0600) if
// the file does not yet exist.
func LoadOrCreateIdentity(path string) (handshake.Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return decodeSecretFile(path)
	} else if !os.IsNotExist(err) {
		return handshake.Identity{}, fmt.Errorf("node: read identity: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return handshake.Identity{}, fmt.Errorf("node: generate identity: %w", err)
	}
	identity := handshake.Identity{Public: pub, Private: priv}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return handshake.Identity{}, fmt.Errorf("node: create identity dir: %w", err)
	}
	if err := writeSecretFile(path, identity); err != nil {
		return handshake.Identity{}, err
	}
	return identity, nil
}

func decodeSecretFile(path string) (handshake.Identity, error) {
	var sf secretFile
	if _, err := toml.DecodeFile(path, &sf); err != nil {
		return handshake.Identity{}, fmt.Errorf("node: parse identity file: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(sf.Secret)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return handshake.Identity{}, fmt.Errorf("node: identity file has a malformed secret key")
	}
	privKey := ed25519.PrivateKey(priv)
	return handshake.Identity{Public: privKey.Public().(ed25519.PublicKey), Private: privKey}, nil
}

func writeSecretFile(path string, identity handshake.Identity) error {
	sf := secretFile{
		ID:     "@" + base64.StdEncoding.EncodeToString(identity.Public) + ".ed25519",
		Secret: base64.StdEncoding.EncodeToString(identity.Private),
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("node: create identity file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# this is your SECRET name.\n" +
		"# this name makes you impersonatable (for this feed).\n" +
		"# NEVER show this to anyone!!!\n\n"); err != nil {
		return fmt.Errorf("node: write identity file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(sf); err != nil {
		return fmt.Errorf("node: encode identity file: %w", err)
	}
	return nil
}
