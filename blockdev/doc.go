// Package blockdev provides block device implementations for the bcache
// buffer cache.
//
// A Device moves exactly one fixed-size block per call, synchronously. The
// package ships a sparse in-memory device for tests and ephemeral use, a
// file-backed device (optionally memory-mapped for reads), throttling and
// fault-injection wrappers, and compressed image snapshots. Object-store
// backed devices live in the s3 and minio subpackages.
package blockdev
