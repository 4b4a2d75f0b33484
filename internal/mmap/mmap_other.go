//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Fallback for platforms without mmap: read the file into memory.
func mapFile(f *os.File, size int) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func unmapFile(data []byte) error {
	return nil
}
