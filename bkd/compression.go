package bkd

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the per-leaf block compression of an on-disk tree.
type Compression uint8

const (
	// CompressionNone stores leaf blocks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, hot data).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses Zstandard block compression (better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) valid() bool {
	return c == CompressionNone || c == CompressionLZ4 || c == CompressionZstd
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block frame layout: [uncompressedSize uint32][compressedSize uint32][payload].
// compressedSize == 0 marks an uncompressed payload.
const blockHeaderSize = 8

// compressBlock frames data for storage. Incompressible blocks (ratio
// above 0.9) fall back to the uncompressed frame regardless of the
// requested compression.
func compressBlock(data []byte, compression Compression) ([]byte, error) {
	var compressed []byte

	switch compression {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("bkd: lz4 compression: %w", err)
		}
		compressed = buf[:n] // n == 0 means incompressible
	case CompressionZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("bkd: unknown compression type %d", compression)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		frame := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(frame[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(frame[4:], 0)
		copy(frame[blockHeaderSize:], data)
		return frame, nil
	}

	frame := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(compressed)))
	copy(frame[blockHeaderSize:], compressed)
	return frame, nil
}

// decompressBlock decodes the frame starting at buf[0]. buf may extend
// past the frame; only the framed bytes are read.
func decompressBlock(buf []byte, compression Compression) ([]byte, error) {
	if len(buf) < blockHeaderSize {
		return nil, fmt.Errorf("%w: truncated block header", ErrCorruptIndex)
	}

	rawSize := binary.LittleEndian.Uint32(buf[0:])
	compSize := binary.LittleEndian.Uint32(buf[4:])

	if compSize == 0 {
		if len(buf) < blockHeaderSize+int(rawSize) {
			return nil, fmt.Errorf("%w: truncated block payload", ErrCorruptIndex)
		}
		return buf[blockHeaderSize : blockHeaderSize+int(rawSize)], nil
	}

	if len(buf) < blockHeaderSize+int(compSize) {
		return nil, fmt.Errorf("%w: truncated block payload", ErrCorruptIndex)
	}
	payload := buf[blockHeaderSize : blockHeaderSize+int(compSize)]

	switch compression {
	case CompressionLZ4:
		data := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 block: %v", ErrCorruptIndex, err)
		}
		if n != int(rawSize) {
			return nil, fmt.Errorf("%w: lz4 block decoded %d bytes, want %d", ErrCorruptIndex, n, rawSize)
		}
		return data, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		data, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd block: %v", ErrCorruptIndex, err)
		}
		if len(data) != int(rawSize) {
			return nil, fmt.Errorf("%w: zstd block decoded %d bytes, want %d", ErrCorruptIndex, len(data), rawSize)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: compressed block with compression type %d", ErrCorruptIndex, compression)
	}
}
