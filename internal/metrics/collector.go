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
	// ActivePulls tracks how many createHistoryStream pulls a node's
	// replication controller currently has in flight.
	ActivePulls = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "active_pulls",
			Help:      "Number of feeds currently being pulled from peers",
		},
	)

	// ReplicationTargets tracks the number of feeds a node's
	// replication config is configured to follow.
	ReplicationTargets = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "targets",
			Help:      "Number of feeds configured for replication",
		},
	)

	// GapsDetected tracks sequence gaps found while applying a
	// replicated feed, where a message skips ahead of the expected
	// next sequence number.
	GapsDetected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "gaps_detected_total",
			Help:      "Total number of sequence gaps detected during replication",
		},
	)
)
