// Package s3 provides an S3-backed block device for the bcache buffer
// cache. Each block is stored as its own object under a key prefix, so a
// device can be shared by offset-independent readers and sized lazily.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client is the subset of the S3 API the device uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Device implements blockdev.Device on top of S3. Blocks that were never
// written read as zeros, matching sparse device semantics.
type Device struct {
	client    Client
	bucket    string
	prefix    string
	blockSize int
}

// NewDevice creates an S3-backed device.
// rootPrefix is prepended to all keys (e.g. "dev-1/").
func NewDevice(client Client, bucket, rootPrefix string, blockSize int) *Device {
	return &Device{
		client:    client,
		bucket:    bucket,
		prefix:    rootPrefix,
		blockSize: blockSize,
	}
}

// NewFromConfig creates a device using the default AWS configuration chain
// (environment, shared config, instance role).
func NewFromConfig(ctx context.Context, bucket, rootPrefix string, blockSize int, optFns ...func(*config.LoadOptions) error) (*Device, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return NewDevice(s3.NewFromConfig(cfg), bucket, rootPrefix, blockSize), nil
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

	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(blockno)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			clear(p)
			return nil
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.ReadFull(resp.Body, p)
	if err != nil {
		return fmt.Errorf("short block object: read %d of %d: %w", n, d.blockSize, err)
	}
	return nil
}

// WriteBlock stores the block as one object.
func (d *Device) WriteBlock(ctx context.Context, blockno uint64, p []byte) error {
	if len(p) != d.blockSize {
		return fmt.Errorf("payload length %d, block size %d", len(p), d.blockSize)
	}

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(blockno)),
		Body:   bytes.NewReader(p),
	})
	return err
}

// TrimBlock discards a block, returning it to the zero state.
func (d *Device) TrimBlock(ctx context.Context, blockno uint64) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(blockno)),
	})
	return err
}

// Close implements blockdev.Device; the S3 client is owned by the caller.
func (d *Device) Close() error { return nil }
