package graph

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/utils"
)

const allRoles = roleSource | roleDestination

func locationRoles(l Location) uint8 {
	switch l {
	case Source:
		return roleSource
	case Destination:
		return roleDestination
	}
	return allRoles
}

func rolesLocation(roles uint8) Location {
	switch roles {
	case roleSource:
		return Source
	case roleDestination:
		return Destination
	}
	return Any
}

// Declares that the operator just run may have written the field at loc. Every host calls it
// after the same operators, whether or not it wrote anything locally.
func (f *Field[T]) MarkWritten(loc Location) {
	if !f.onDemand {
		log.Panic().Msg("Field " + f.name + " was not declared for on-demand synchronization")
	}
	f.pendingWrite |= locationRoles(loc)
}

// Brings mirrors at read up to date before an operator reads them, synchronizing only what
// is pending. Writes since the last reduce are reduced first. Masters stay marked until every
// location has been refreshed, so a later read elsewhere can still be served. Collective.
func SyncOnDemand[T utils.Number](ctx context.Context, f *Field[T], read Location) SyncReport {
	if !f.onDemand {
		log.Panic().Msg("Field " + f.name + " was not declared for on-demand synchronization")
	}
	rep := SyncReport{Field: f.name, Read: read}
	want := locationRoles(read)
	start := time.Now()

	switch {
	case f.pendingWrite != 0:
		rep.Write = rolesLocation(f.pendingWrite)
		f.reducePhase(ctx, rep.Write, &rep)
		f.broadcastPhase(ctx, read, &rep)
		f.pendingWrite = 0
		f.staleFor = allRoles &^ want
	case f.staleFor&want != 0:
		rep.Write = read
		f.broadcastPhase(ctx, read, &rep)
		f.staleFor &^= want
	default:
		rep.Skipped = true
		return rep
	}
	if f.staleFor == 0 {
		f.dirty.Zeroes()
	}

	f.record(&rep, time.Since(start))
	return rep
}

// Whether a read at loc would need to communicate.
func (f *Field[T]) Pending(loc Location) bool {
	return f.pendingWrite != 0 || f.staleFor&locationRoles(loc) != 0
}
