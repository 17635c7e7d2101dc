package graph

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

// What one synchronization of a field did on this host.
type SyncReport struct {
	Field     string
	Write     Location
	Read      Location
	Reduced   int  // Mirror values sent to their masters.
	Broadcast int  // Master values sent to mirrors.
	BytesSent int  // Update message bytes, before transport compression.
	Skipped   bool // On-demand synchronization found nothing to do.
}

// Makes the field consistent between masters and mirrors. Collective: every host calls Sync
// for the same field with the same locations, in the same order.
//
// write names where the operator since the last synchronization may have written the field:
// mirrors there send their value to the master, which folds it in with the reducer.
// read names where the next operator will read the field: mirrors there receive the value of
// their master. Both phases send only marked vertices when the field has a bitset.
func Sync[T utils.Number](ctx context.Context, f *Field[T], write, read Location) SyncReport {
	if f.g.Options.NoFilters {
		write, read = Any, Any
	}
	rep := SyncReport{Field: f.name, Write: write, Read: read}
	start := time.Now()

	f.reducePhase(ctx, write, &rep)
	f.broadcastPhase(ctx, read, &rep)
	f.clearPending()

	f.record(&rep, time.Since(start))
	return rep
}

// Mirrors send contributions to their masters; masters fold them in host order.
func (f *Field[T]) reducePhase(ctx context.Context, write Location, rep *SyncReport) {
	g := f.g
	contribution := func(lid uint32) T { return f.Values[lid] }
	if f.reducer.additive {
		contribution = func(lid uint32) T {
			delta := f.Values[lid] - f.synced[lid]
			f.synced[lid] = f.Values[lid]
			return delta
		}
	}

	sends := make(map[uint32][]byte)
	var from []uint32
	for h := uint32(0); h < g.numHosts; h++ {
		if h == g.hostID {
			continue
		}
		if lids := g.pattern.mirrors[write][h]; len(lids) > 0 {
			msg, count := encodeUpdates(lids, f.dirty, contribution)
			sends[h] = msg
			rep.Reduced += count
			rep.BytesSent += len(msg)
		}
		if len(g.pattern.masters[write][h]) > 0 {
			from = append(from, h)
		}
	}

	recvd, err := g.ep.Exchange(ctx, sends, from)
	if err != nil {
		log.Panic().Err(err).Msg("Reduce of field " + f.name + " failed")
	}
	for _, h := range from {
		masters := g.pattern.masters[write][h]
		positions, vals, err := decodeUpdates[T](recvd[h], len(masters))
		if err != nil {
			log.Panic().Err(err).Msg("Bad reduce message for field " + f.name + " from host " + utils.V(h))
		}
		// Positions within one message are distinct, so the fold parallelizes; messages do not.
		g.pool.ParallelFor(uint32(len(vals)), func(_, i uint32) {
			lid := masters[i]
			if positions != nil {
				lid = masters[positions[i]]
			}
			f.reducer.Combine(&f.Values[lid], vals[i])
			f.MarkDirty(lid)
		})
	}

	if f.dirty != nil {
		f.dirty.ClearRange(g.numMasters, g.NumLocal())
	}
}

// Masters send their value to mirrors at the read location.
func (f *Field[T]) broadcastPhase(ctx context.Context, read Location, rep *SyncReport) {
	g := f.g
	value := func(lid uint32) T { return f.Values[lid] }

	sends := make(map[uint32][]byte)
	var from []uint32
	for h := uint32(0); h < g.numHosts; h++ {
		if h == g.hostID {
			continue
		}
		if lids := g.pattern.masters[read][h]; len(lids) > 0 {
			msg, count := encodeUpdates(lids, f.dirty, value)
			sends[h] = msg
			rep.Broadcast += count
			rep.BytesSent += len(msg)
		}
		if len(g.pattern.mirrors[read][h]) > 0 {
			from = append(from, h)
		}
	}

	recvd, err := g.ep.Exchange(ctx, sends, from)
	if err != nil {
		log.Panic().Err(err).Msg("Broadcast of field " + f.name + " failed")
	}
	for _, h := range from {
		mirrors := g.pattern.mirrors[read][h]
		positions, vals, err := decodeUpdates[T](recvd[h], len(mirrors))
		if err != nil {
			log.Panic().Err(err).Msg("Bad broadcast message for field " + f.name + " from host " + utils.V(h))
		}
		g.pool.ParallelFor(uint32(len(vals)), func(_, i uint32) {
			lid := mirrors[i]
			if positions != nil {
				lid = mirrors[positions[i]]
			}
			f.broadcast(&f.Values[lid], vals[i])
			if f.synced != nil {
				f.synced[lid] = f.Values[lid]
			}
		})
	}
}

func (f *Field[T]) record(rep *SyncReport, elapsed time.Duration) {
	loop := "Sync_" + f.name
	f.g.Stats.Add(0, loop, "Time", stats.Int(elapsed.Nanoseconds()))
	f.g.Stats.Add(0, loop, "ReduceEntries", stats.Int(rep.Reduced))
	f.g.Stats.Add(0, loop, "BroadcastEntries", stats.Int(rep.Broadcast))
	f.g.Stats.Add(0, loop, "Bytes", stats.Int(rep.BytesSent))
	f.g.Log.Trace().Msg("Sync " + f.name + " write " + rep.Write.String() + " read " + rep.Read.String() +
		" reduced " + utils.V(rep.Reduced) + " broadcast " + utils.V(rep.Broadcast) + " bytes " + utils.V(rep.BytesSent))
}
