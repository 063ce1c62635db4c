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
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// LANPort is the UDP port SSB nodes broadcast and listen for peer
// discovery announcements on, matching the port the legacy protocol's
// local-network discovery reserves.
const LANPort = 8008

// PeerAnnouncement is one parsed broadcast: a peer's dial address and
// long-term identity.
type PeerAnnouncement struct {
	Host   string
	Port   int
	Public ed25519.PublicKey
}

func formatAnnouncement(host string, port int, pub ed25519.PublicKey) string {
	return fmt.Sprintf("net:%s:%d~shs:%s", host, port, base64.StdEncoding.EncodeToString(pub))
}

func parseAnnouncement(msg string) (PeerAnnouncement, bool) {
	netPart, shsPart, ok := strings.Cut(msg, "~shs:")
	if !ok {
		return PeerAnnouncement{}, false
	}
	netPart = strings.TrimPrefix(netPart, "net:")
	host, portStr, ok := strings.Cut(netPart, ":")
	if !ok {
		return PeerAnnouncement{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return PeerAnnouncement{}, false
	}
	pub, err := base64.StdEncoding.DecodeString(shsPart)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return PeerAnnouncement{}, false
	}
	return PeerAnnouncement{Host: host, Port: port, Public: ed25519.PublicKey(pub)}, true
}

// BroadcastPresence periodically announces this node's dial address
// and identity over UDP broadcast on LANPort until ctx is done.
func BroadcastPresence(ctx context.Context, listenPort int, identity ed25519.PublicKey, interval time.Duration) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("255.255.255.255:%d", LANPort))
	if err != nil {
		return fmt.Errorf("node: resolve broadcast address: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("node: dial broadcast socket: %w", err)
	}

	msg := []byte(formatAnnouncement(localIPHint(), listenPort, identity))

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = conn.Write(msg)
			}
		}
	}()
	return nil
}

// DiscoverPeers listens on LANPort for broadcast announcements from
// other nodes and invokes onPeer for each one parsed, until ctx is
// done.
func DiscoverPeers(ctx context.Context, onPeer func(PeerAnnouncement)) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", LANPort))
	if err != nil {
		return fmt.Errorf("node: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("node: listen udp: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		buf := make([]byte, 512)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if ann, ok := parseAnnouncement(string(buf[:n])); ok {
				onPeer(ann)
			}
		}
	}()
	return nil
}

// localIPHint returns the first non-loopback IPv4 address found on
// this host, best-effort, for use in outgoing broadcast announcements.
func localIPHint() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "0.0.0.0"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "0.0.0.0"
}
