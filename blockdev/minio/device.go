// Package minio provides a block device backed by MinIO or any
// S3-compatible object store, one object per block.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
)

// Device implements blockdev.Device on top of a MinIO client. Blocks that
// were never written read as zeros, matching sparse device semantics.
type Device struct {
	client    *minio.Client
	bucket    string
	prefix    string
	blockSize int
}

// NewDevice creates a MinIO-backed device.
// rootPrefix is prepended to all keys (e.g. "dev-1/").
func NewDevice(client *minio.Client, bucket, rootPrefix string, blockSize int) *Device {
	return &Device{
		client:    client,
		bucket:    bucket,
		prefix:    rootPrefix,
		blockSize: blockSize,
	}
}

func (d *Device) key(blockno uint64) string {
	return path.Join(d.prefix, fmt.Sprintf("blk-%016x", blockno))
}

// BlockSize returns the fixed transfer size in bytes.
func (d *Device) BlockSize() int { return d.blockSize }

// ReadBlock fetches a block object. A missing object reads as zeros.
func (d *Device) ReadBlock(ctx context.Context, blockno uint64, p []byte) error {
	if len(p) != d.blockSize {
		return fmt.Errorf("payload length %d, block size %d", len(p), d.blockSize)
	}

	obj, err := d.client.GetObject(ctx, d.bucket, d.key(blockno), minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = obj.Close() }()

	n, err := io.ReadFull(obj, p)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			clear(p)
			return nil
		}
		return fmt.Errorf("short block object: read %d of %d: %w", n, d.blockSize, err)
	}
	return nil
}

// WriteBlock stores the block as one object.
func (d *Device) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if len(p) != d.blockSize {
		return fmt.Errorf("payload length %d, block size %d", len(p), d.blockSize)
	}

	_, err := d.client.PutObject(ctx, d.bucket, d.key(blockno),
		bytes.NewReader(p), int64(len(p)), minio.PutObjectOptions{})
	return err
}

// TrimBlock discards a block, returning it to the zero state.
func (d *Device) TrimBlock(ctx context.Context, blockno uint64) error {
	err := d.client.RemoveObject(ctx, d.bucket, d.key(blockno), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
		return err
	}
	return nil
}

// Close implements blockdev.Device; the MinIO client is owned by the caller.
func (d *Device) Close() error { return nil }
