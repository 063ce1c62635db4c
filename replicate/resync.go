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

package replicate

import (
	"context"
	"fmt"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/muxrpc"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store"
)

// ResyncLocalFeed recovers the node's own feed from a peer after local
// storage has fallen behind or been lost (e.g. a restored backup that
// is missing the last few entries): it pulls the peer's whole copy of
// the feed from sequence 1, verifies every message came from the local
// identity's own key, and hands the recovered prefix to the Store's
// Resync, which itself rejects anything that contradicts a
// still-present local message.
func ResyncLocalFeed(ctx context.Context, st store.Store, mux *muxrpc.Mux, identity refs.FeedRef) error {
	stream, err := mux.Source([]string{"createHistoryStream"}, historyStreamArgs{ID: identity.Ref(), Seq: 1})
	if err != nil {
		return fmt.Errorf("replicate: resync open stream: %w", err)
	}
	defer stream.Close()

	var provisional []*codec.Message
	for {
		pkt, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if pkt.EndOrErr {
			break
		}
		_, msg, err := codec.VerifyRaw(pkt.Body)
		if err != nil {
			return fmt.Errorf("replicate: resync verify: %w", err)
		}
		if !msg.Author.Equal(identity) {
			return fmt.Errorf("replicate: resync stream returned a message from %s, not %s", msg.Author.Ref(), identity.Ref())
		}
		provisional = append(provisional, msg)
	}

	if len(provisional) == 0 {
		return nil
	}
	return st.Resync(identity, provisional)
}
