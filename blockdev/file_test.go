package blockdev

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDevice_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	ctx := context.Background()

	d, err := CreateFileDevice(path, 512, 100)
	require.NoError(t, err)
	require.Equal(t, 512, d.BlockSize())
	require.EqualValues(t, 100, d.NumBlocks())

	payload := bytes.Repeat([]byte{0x5a}, 512)
	require.NoError(t, d.WriteBlock(ctx, 13, payload))
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	// Verify image size on disk.
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 512*100, fi.Size())

	// Reopen read-write, data survives.
	d, err = OpenFileDevice(path, 512, false)
	require.NoError(t, err)
	require.EqualValues(t, 100, d.NumBlocks())

	got := make([]byte, 512)
	require.NoError(t, d.ReadBlock(ctx, 13, got))
	assert.Equal(t, payload, got)
	require.NoError(t, d.Close())
}

func TestFileDevice_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	ctx := context.Background()

	d, err := CreateFileDevice(path, 512, 10)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte{7}, 512)
	require.NoError(t, d.WriteBlock(ctx, 3, payload))
	require.NoError(t, d.Close())

	ro, err := OpenFileDevice(path, 512, true)
	require.NoError(t, err)
	defer ro.Close()

	got := make([]byte, 512)
	require.NoError(t, ro.ReadBlock(ctx, 3, got))
	assert.Equal(t, payload, got)

	require.ErrorIs(t, ro.WriteBlock(ctx, 3, payload), ErrReadOnly)
}

func TestFileDevice_Bounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	ctx := context.Background()

	d, err := CreateFileDevice(path, 512, 4)
	require.NoError(t, err)
	defer d.Close()

	p := make([]byte, 512)
	require.ErrorIs(t, d.ReadBlock(ctx, 4, p), ErrBlockOutOfRange)
	require.ErrorIs(t, d.WriteBlock(ctx, 4, p), ErrBlockOutOfRange)
}

func TestFileDevice_BadImageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0o644))

	_, err := OpenFileDevice(path, 512, false)
	require.Error(t, err)
}

func TestFileDevice_Closed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	d, err := CreateFileDevice(path, 512, 4)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "close is idempotent")

	p := make([]byte, 512)
	require.ErrorIs(t, d.ReadBlock(context.Background(), 0, p), ErrClosed)
}
