package comm

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Frame message of frame.proto.
const (
	frameKind    protowire.Number = 1
	frameFrom    protowire.Number = 2
	frameSeq     protowire.Number = 3
	frameFlags   protowire.Number = 4
	framePayload protowire.Number = 5
)

// Appends f as a Frame message carrying body, the payload as compressed under flags.
// Zero fields are left out, as proto3 does.
func appendFrame(b []byte, f Frame, flags uint8, body []byte) []byte {
	b = appendVarintField(b, frameKind, uint64(f.Kind))
	b = appendVarintField(b, frameFrom, uint64(f.From))
	b = appendVarintField(b, frameSeq, f.Seq)
	b = appendVarintField(b, frameFlags, uint64(flags))
	if len(body) > 0 {
		b = protowire.AppendTag(b, framePayload, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Parses a Frame message. The returned body aliases b. Unknown fields are skipped.
func parseFrame(b []byte) (f Frame, flags uint8, body []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, 0, nil, fmt.Errorf("frame tag: %w: %w", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == framePayload && typ == protowire.BytesType:
			body, n = protowire.ConsumeBytes(b)
		case num >= frameKind && num <= frameFlags && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				err = setFrameField(&f, &flags, num, v)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return f, 0, nil, fmt.Errorf("frame field %d: %w: %w", num, ErrMalformedFrame, protowire.ParseError(n))
		}
		if err != nil {
			return f, 0, nil, err
		}
		b = b[n:]
	}
	return f, flags, body, nil
}

func setFrameField(f *Frame, flags *uint8, num protowire.Number, v uint64) error {
	limit := uint64(math.MaxUint8)
	switch num {
	case frameFrom:
		limit = math.MaxUint32
	case frameSeq:
		limit = math.MaxUint64
	}
	if v > limit {
		return fmt.Errorf("frame field %d is %d: %w", num, v, ErrMalformedFrame)
	}
	switch num {
	case frameKind:
		f.Kind = Kind(v)
	case frameFrom:
		f.From = uint32(v)
	case frameSeq:
		f.Seq = v
	case frameFlags:
		*flags = uint8(v)
	}
	return nil
}
