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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PeerConnectionsOpened tracks peer connections established, after
	// a completed handshake, by direction.
	PeerConnectionsOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "connections_opened_total",
			Help:      "Total number of peer connections opened",
		},
		[]string{"direction"}, // inbound, outbound
	)

	// PeerConnectionsActive tracks currently connected peers.
	PeerConnectionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "connections_active",
			Help:      "Number of currently connected peers",
		},
	)

	// PeerConnectionsClosed tracks peer connections torn down, by reason.
	PeerConnectionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "connections_closed_total",
			Help:      "Total number of peer connections closed",
		},
		[]string{"reason"}, // eof, error, local_close
	)

	// BoxstreamFrameSize tracks boxstream frame body sizes.
	BoxstreamFrameSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "boxstream_frame_size_bytes",
			Help:      "Size of boxstream frame bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 7), // 64B to 256KB (max frame is 4096B)
		},
		[]string{"direction"}, // sent, received
	)
)
