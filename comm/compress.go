package comm

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Compression uint8

const (
	CompressNone Compression = iota
	CompressZstd
	CompressLZ4
)

// Payloads below this size are sent as they are.
const compressMinSize = 256

const (
	flagZstd uint8 = 1 << iota
	flagLZ4
)

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressNone, nil
	case "zstd":
		return CompressZstd, nil
	case "lz4":
		return CompressLZ4, nil
	}
	return CompressNone, fmt.Errorf("unknown compression %q (none, zstd, lz4)", s)
}

func (c Compression) String() string {
	switch c {
	case CompressZstd:
		return "zstd"
	case CompressLZ4:
		return "lz4"
	}
	return "none"
}

// Frame payload codec. Both encoder and decoder are safe for concurrent use.
type codec struct {
	kind Compression
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

func newCodec(kind Compression) (*codec, error) {
	c := &codec{kind: kind}
	var err error
	// A receiver must decode whatever its peers chose, so the zstd decoder always exists.
	if c.zdec, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	if kind == CompressZstd {
		if c.zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest)); err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	return c, nil
}

// Returns the bytes to put on the wire and the flag describing them.
func (c *codec) compress(payload []byte) ([]byte, uint8) {
	if len(payload) < compressMinSize {
		return payload, 0
	}
	switch c.kind {
	case CompressZstd:
		out := c.zenc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		if len(out) < len(payload) {
			return out, flagZstd
		}
	case CompressLZ4:
		out := make([]byte, 4+lz4.CompressBlockBound(len(payload)))
		binary.LittleEndian.PutUint32(out, uint32(len(payload)))
		n, err := lz4.CompressBlock(payload, out[4:], nil)
		if err == nil && n > 0 && 4+n < len(payload) {
			return out[:4+n], flagLZ4
		}
	}
	return payload, 0
}

func (c *codec) decompress(flags uint8, b []byte) ([]byte, error) {
	switch {
	case flags&flagZstd != 0:
		return c.zdec.DecodeAll(b, nil)
	case flags&flagLZ4 != 0:
		if len(b) < 4 {
			return nil, fmt.Errorf("lz4 frame of %d bytes", len(b))
		}
		out := make([]byte, binary.LittleEndian.Uint32(b))
		n, err := lz4.UncompressBlock(b[4:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out[:n], nil
	}
	return b, nil
}

func (c *codec) close() {
	if c.zenc != nil {
		c.zenc.Close()
	}
	c.zdec.Close()
}
