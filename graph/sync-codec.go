package graph

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/utils"
)

// How an update message names the positions it carries. Positions index the list of vertices
// both ends of a host pair agreed on for the location in use.
type encoding uint8

const (
	encNone     encoding = iota // No updates.
	encOnlyData                 // Every position, in order.
	encOffsets                  // Roaring bitmap of positions.
	encBitset                   // Dense bitset over the whole list.
)

var errShortMessage = errors.New("truncated update message")

// Packs the values of the selected positions of lids. Without a dirty bitmap every position
// is selected. Picks the smaller of the sparse and dense position encodings.
func encodeUpdates[T utils.Number](lids []uint32, dirty utils.Bitmap, value func(lid uint32) T) (msg []byte, count int) {
	var positions []uint32
	vals := make([]T, 0, len(lids))
	for i, lid := range lids {
		if dirty != nil && !dirty.Get(lid) {
			continue
		}
		positions = append(positions, uint32(i))
		vals = append(vals, value(lid))
	}
	count = len(vals)

	switch {
	case count == 0:
		return []byte{byte(encNone)}, 0
	case count == len(lids):
		msg = utils.AppendValues([]byte{byte(encOnlyData)}, uint32(count))
		return utils.AppendValues(msg, vals...), count
	}

	rb := roaring.BitmapOf(positions...)
	rb.RunOptimize()
	denseSize := uint64(len(lids)+63) / 64 * 8
	var enc encoding
	var index []byte
	var err error
	if rb.GetSerializedSizeInBytes() < denseSize {
		enc = encOffsets
		index, err = rb.ToBytes()
	} else {
		enc = encBitset
		bs := bitset.New(uint(len(lids)))
		for _, p := range positions {
			bs.Set(uint(p))
		}
		index, err = bs.MarshalBinary()
	}
	if err != nil {
		log.Panic().Err(err).Msg("Failed to serialize update positions")
	}

	msg = make([]byte, 0, 9+len(index)+count*utils.SizeOf[T]())
	msg = append(msg, byte(enc))
	msg = utils.AppendValues(msg, uint32(count), uint32(len(index)))
	msg = append(msg, index...)
	return utils.AppendValues(msg, vals...), count
}

// Unpacks a message built by encodeUpdates for a list of listLen positions.
// A nil positions slice with values means every position, in order.
func decodeUpdates[T utils.Number](msg []byte, listLen int) (positions []uint32, vals []T, err error) {
	if len(msg) == 0 {
		return nil, nil, errShortMessage
	}
	enc := encoding(msg[0])
	msg = msg[1:]
	if enc == encNone {
		return nil, nil, nil
	}

	hdr, msg, ok := utils.ReadValues[uint32](msg, 1)
	if !ok {
		return nil, nil, errShortMessage
	}
	count := int(hdr[0])
	if count > listLen {
		return nil, nil, errors.New("update message carries more positions than the list holds")
	}

	switch enc {
	case encOnlyData:
		if count != listLen {
			return nil, nil, errors.New("dense update message does not cover the list")
		}
	case encOffsets, encBitset:
		var size []uint32
		if size, msg, ok = utils.ReadValues[uint32](msg, 1); !ok || int(size[0]) > len(msg) {
			return nil, nil, errShortMessage
		}
		index := msg[:size[0]]
		msg = msg[size[0]:]
		if positions, err = decodePositions(enc, index, listLen); err != nil {
			return nil, nil, err
		}
		if len(positions) != count {
			return nil, nil, errors.New("update message position count mismatch")
		}
	default:
		return nil, nil, errors.New("unknown update message encoding " + utils.V(enc))
	}

	if vals, _, ok = utils.ReadValues[T](msg, count); !ok {
		return nil, nil, errShortMessage
	}
	return positions, vals, nil
}

func decodePositions(enc encoding, index []byte, listLen int) ([]uint32, error) {
	var positions []uint32
	if enc == encOffsets {
		rb := roaring.New()
		if err := rb.UnmarshalBinary(index); err != nil {
			return nil, err
		}
		positions = rb.ToArray()
	} else {
		var bs bitset.BitSet
		if err := bs.UnmarshalBinary(index); err != nil {
			return nil, err
		}
		positions = make([]uint32, 0, bs.Count())
		for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
			positions = append(positions, uint32(i))
		}
	}
	if len(positions) > 0 && int(positions[len(positions)-1]) >= listLen {
		return nil, errors.New("update message position out of range")
	}
	return positions, nil
}
