//go:build !unix

package mmap

import "os"

func osMap(_ *os.File, _ int) ([]byte, error) {
	return nil, ErrUnsupported
}

func osUnmap(_ []byte) error {
	return nil
}
