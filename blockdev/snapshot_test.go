package blockdev

import (
	"bytes"
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillTestDevice(t *testing.T, d Device, blocks []uint64) map[uint64][]byte {
	t.Helper()

	ctx := context.Background()
	want := make(map[uint64][]byte, len(blocks))
	for _, blk := range blocks {
		p := make([]byte, d.BlockSize())
		// Repetitive payload so LZ4 and zstd have something to compress.
		for i := range p {
			p[i] = byte(blk) + byte(i%7)
		}
		require.NoError(t, d.WriteBlock(ctx, blk, p))
		want[blk] = p
	}
	return want
}

func TestImage_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		comp Compression
	}{
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"zstd", CompressionZSTD},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			src := NewMemoryDevice(512, 0)
			want := fillTestDevice(t, src, []uint64{0, 3, 9, 1 << 33})

			var buf bytes.Buffer
			require.NoError(t, ExportImage(ctx, &buf, src, src.WrittenBlocks(), tc.comp))

			dst := NewMemoryDevice(512, 0)
			n, err := ImportImage(ctx, &buf, dst)
			require.NoError(t, err)
			require.Equal(t, len(want), n)

			got := make([]byte, 512)
			for blk, p := range want {
				require.NoError(t, dst.ReadBlock(ctx, blk, got))
				assert.Equal(t, p, got, "block %d", blk)
			}
		})
	}
}

func TestImage_IncompressibleStoredRaw(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryDevice(512, 0)

	// High-entropy payload, LZ4 cannot shrink it.
	p := make([]byte, 512)
	state := uint32(0x12345678)
	for i := range p {
		state = state*1664525 + 1013904223
		p[i] = byte(state >> 24)
	}
	require.NoError(t, src.WriteBlock(ctx, 0, p))

	var buf bytes.Buffer
	require.NoError(t, ExportImage(ctx, &buf, src, src.WrittenBlocks(), CompressionLZ4))

	dst := NewMemoryDevice(512, 0)
	n, err := ImportImage(ctx, &buf, dst)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := make([]byte, 512)
	require.NoError(t, dst.ReadBlock(ctx, 0, got))
	assert.Equal(t, p, got)
}

func TestImage_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryDevice(512, 0)
	fillTestDevice(t, src, []uint64{1, 2})

	var buf bytes.Buffer
	require.NoError(t, ExportImage(ctx, &buf, src, src.WrittenBlocks(), CompressionNone))

	// Flip a byte in the first block payload (past header and entry).
	img := buf.Bytes()
	img[21+16+100] ^= 0xff

	dst := NewMemoryDevice(512, 0)
	n, err := ImportImage(ctx, bytes.NewReader(img), dst)
	require.ErrorIs(t, err, ErrBadImage)
	assert.Zero(t, n)
}

func TestImage_BadMagic(t *testing.T) {
	dst := NewMemoryDevice(512, 0)
	_, err := ImportImage(context.Background(), bytes.NewReader(make([]byte, 64)), dst)
	require.ErrorIs(t, err, ErrBadImage)
}

func TestImage_Truncated(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryDevice(512, 0)
	fillTestDevice(t, src, []uint64{1})

	var buf bytes.Buffer
	require.NoError(t, ExportImage(ctx, &buf, src, src.WrittenBlocks(), CompressionNone))

	dst := NewMemoryDevice(512, 0)
	_, err := ImportImage(ctx, bytes.NewReader(buf.Bytes()[:buf.Len()-10]), dst)
	require.ErrorIs(t, err, ErrBadImage)
}

func TestImage_BlockSizeMismatch(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryDevice(512, 0)
	fillTestDevice(t, src, []uint64{1})

	var buf bytes.Buffer
	require.NoError(t, ExportImage(ctx, &buf, src, src.WrittenBlocks(), CompressionNone))

	dst := NewMemoryDevice(4096, 0)
	_, err := ImportImage(ctx, &buf, dst)
	require.ErrorIs(t, err, ErrBadImage)
}

func TestImage_SubsetExport(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryDevice(512, 0)
	fillTestDevice(t, src, []uint64{1, 2, 3, 4})

	subset := roaring64.BitmapOf(2, 4)

	var buf bytes.Buffer
	require.NoError(t, ExportImage(ctx, &buf, src, subset, CompressionNone))

	dst := NewMemoryDevice(512, 0)
	n, err := ImportImage(ctx, &buf, dst)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	written := dst.WrittenBlocks()
	assert.True(t, written.Contains(2))
	assert.True(t, written.Contains(4))
	assert.False(t, written.Contains(1))
}
