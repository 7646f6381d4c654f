package blockdev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression used in a device image.
type Compression uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd block compression (better ratio).
	CompressionZSTD Compression = 2
)

var imageMagic = [8]byte{'B', 'D', 'I', 'M', 'G', '0', '0', '1'}

// ErrBadImage is returned when an image stream is malformed or a block
// fails its checksum.
var ErrBadImage = errors.New("bad device image")

// crc32cTable is pre-computed for the CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// zstd encoder/decoder pools for efficiency
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

// ExportImage writes the given blocks of a device to w as a portable image.
// Each entry carries a CRC32-Castagnoli checksum of the raw block; entries
// that do not shrink under compression are stored raw.
//
// Image layout: magic, block size (u32), compression (u8), block count
// (u64), then per block: blockno (u64), crc (u32), compressed length
// (u32, 0 = raw), payload.
func ExportImage(ctx context.Context, w io.Writer, d Device, blocks *roaring64.Bitmap, c Compression) error {
	blockSize := d.BlockSize()

	var hdr [21]byte
	copy(hdr[0:8], imageMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(blockSize))
	hdr[12] = byte(c)
	binary.LittleEndian.PutUint64(hdr[13:21], blocks.GetCardinality())
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	raw := make([]byte, blockSize)
	var entry [16]byte

	it := blocks.Iterator()
	for it.HasNext() {
		blockno := it.Next()

		if err := d.ReadBlock(ctx, blockno, raw); err != nil {
			return err
		}

		payload, err := compressBlock(raw, c)
		if err != nil {
			return err
		}
		clen := uint32(len(payload))
		if len(payload) == len(raw) {
			clen = 0 // stored raw
			payload = raw
		}

		binary.LittleEndian.PutUint64(entry[0:8], blockno)
		binary.LittleEndian.PutUint32(entry[8:12], crc32.Checksum(raw, crc32cTable))
		binary.LittleEndian.PutUint32(entry[12:16], clen)
		if _, err := w.Write(entry[:]); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ImportImage restores an image produced by ExportImage onto d, verifying
// every block checksum. Returns the number of blocks written.
func ImportImage(ctx context.Context, r io.Reader, d Device) (int, error) {
	var hdr [21]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("%w: short header: %v", ErrBadImage, err)
	}
	if [8]byte(hdr[0:8]) != imageMagic {
		return 0, fmt.Errorf("%w: bad magic", ErrBadImage)
	}

	blockSize := int(binary.LittleEndian.Uint32(hdr[8:12]))
	comp := Compression(hdr[12])
	count := binary.LittleEndian.Uint64(hdr[13:21])

	if blockSize != d.BlockSize() {
		return 0, fmt.Errorf("%w: image block size %d, device %d", ErrBadImage, blockSize, d.BlockSize())
	}

	raw := make([]byte, blockSize)
	var entry [16]byte

	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return int(i), fmt.Errorf("%w: short entry: %v", ErrBadImage, err)
		}
		blockno := binary.LittleEndian.Uint64(entry[0:8])
		crc := binary.LittleEndian.Uint32(entry[8:12])
		clen := binary.LittleEndian.Uint32(entry[12:16])

		if clen == 0 {
			if _, err := io.ReadFull(r, raw); err != nil {
				return int(i), fmt.Errorf("%w: short block: %v", ErrBadImage, err)
			}
		} else {
			compressed := make([]byte, clen)
			if _, err := io.ReadFull(r, compressed); err != nil {
				return int(i), fmt.Errorf("%w: short block: %v", ErrBadImage, err)
			}
			if err := decompressBlock(compressed, raw, comp); err != nil {
				return int(i), err
			}
		}

		if crc32.Checksum(raw, crc32cTable) != crc {
			return int(i), fmt.Errorf("%w: checksum mismatch at block %d", ErrBadImage, blockno)
		}
		if err := d.WriteBlock(ctx, blockno, raw); err != nil {
			return int(i), err
		}
	}
	return int(count), nil
}

// compressBlock returns the compressed payload, or the input itself when
// compression is off or does not shrink the block.
func compressBlock(raw []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(raw) {
			return raw, nil // incompressible
		}
		return dst[:n], nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)

		dst := enc.EncodeAll(raw, nil)
		if len(dst) >= len(raw) {
			return raw, nil
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("unknown compression type %d", c)
	}
}

// decompressBlock inflates payload into raw, which must be block sized.
func decompressBlock(payload, raw []byte, c Compression) error {
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return fmt.Errorf("%w: lz4: %v", ErrBadImage, err)
		}
		if n != len(raw) {
			return fmt.Errorf("%w: lz4 size %d, want %d", ErrBadImage, n, len(raw))
		}
		return nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		dst, err := dec.DecodeAll(payload, raw[:0])
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrBadImage, err)
		}
		if len(dst) != len(raw) {
			return fmt.Errorf("%w: zstd size %d, want %d", ErrBadImage, len(dst), len(raw))
		}
		return nil

	default:
		return fmt.Errorf("%w: compressed block with compression type %d", ErrBadImage, c)
	}
}
