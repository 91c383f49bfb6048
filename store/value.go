package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	valueFormatVer1      = 1
	valueFormatVerLatest = valueFormatVer1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfZstd          = vfCompressionBit0
	vfSupportedMask = (vfVer1 | vfZstd)
	vfDefault       = vfVer1

	checksumSize = 8
	minValueSize = 1 + checksumSize

	// maxRawSize bounds the declared uncompressed size of a value.
	maxRawSize = 1 << 30
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

var errIncompressible = errors.New("incompressible")

// valueCodec frames fragment payloads: flags (uvarint), uncompressed size
// (uvarint, compressed values only), xxhash64 of the uncompressed payload
// (8 bytes, little-endian), then the payload itself.
type valueCodec struct {
	compressAbove int
	enc           *zstd.Encoder
	dec           *zstd.Decoder
}

func newValueCodec(compressAbove int) (*valueCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &valueCodec{compressAbove: compressAbove, enc: enc, dec: dec}, nil
}

func (vc *valueCodec) Close() {
	vc.enc.Close()
	vc.dec.Close()
}

func (vc *valueCodec) encode(payload []byte) []byte {
	flags := vfDefault
	body := payload
	if vc.compressAbove >= 0 && len(payload) > vc.compressAbove {
		if compressed, err := vc.compress(payload); err == nil {
			flags |= vfZstd
			body = compressed
		}
	}

	buf := make([]byte, 0, 2*binary.MaxVarintLen64+checksumSize+len(body))
	buf = binary.AppendUvarint(buf, uint64(flags))
	if flags&vfZstd != 0 {
		buf = binary.AppendUvarint(buf, uint64(len(payload)))
	}
	buf = binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(payload))
	return append(buf, body...)
}

func (vc *valueCodec) compress(data []byte) ([]byte, error) {
	compressed := vc.enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

// decode returns the payload of a framed value. The result never aliases
// data when the value is compressed, and always aliases it otherwise.
func (vc *valueCodec) decode(data []byte) ([]byte, valueFlags, error) {
	orig := data
	if len(data) < minValueSize {
		return nil, 0, dataErrf(orig, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, dataErrf(orig, 0, nil, "invalid value: bad flags")
	}
	if (v &^ uint64(vfSupportedMask)) != 0 {
		return nil, 0, dataErrf(orig, 0, nil, "invalid value: unsupported flags %x", v)
	}
	flags := valueFlags(v)
	if flags.ver() != vfVer1 {
		return nil, 0, dataErrf(orig, 0, nil, "invalid value: unsupported format version %d", flags.ver())
	}
	data = data[n:]

	var rawSize uint64
	if flags&vfZstd != 0 {
		rawSize, n = binary.Uvarint(data)
		if n <= 0 || rawSize > maxRawSize {
			return nil, 0, dataErrf(orig, len(orig)-len(data), nil, "invalid value: bad uncompressed size")
		}
		data = data[n:]
	}

	if len(data) < checksumSize {
		return nil, 0, dataErrf(orig, len(orig)-len(data), nil, "invalid value: truncated checksum")
	}
	sum := binary.LittleEndian.Uint64(data)
	data = data[checksumSize:]

	payload := data
	if flags&vfZstd != 0 {
		out, err := vc.dec.DecodeAll(data, make([]byte, 0, min(rawSize, 1<<20)))
		if err != nil {
			return nil, 0, dataErrf(orig, len(orig)-len(data), err, "invalid value: zstd")
		}
		if uint64(len(out)) != rawSize {
			return nil, 0, dataErrf(orig, len(orig)-len(data), nil, "invalid value: got %d uncompressed bytes, expected %d", len(out), rawSize)
		}
		payload = out
	}
	if actual := xxhash.Sum64(payload); actual != sum {
		return nil, 0, dataErrf(orig, len(orig)-len(data), nil, "invalid value: checksum %016x, expected %016x", actual, sum)
	}
	return payload, flags, nil
}
