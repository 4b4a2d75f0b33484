// Package mmap provides read-only memory mapping of files, with a
// portable fallback that reads the file into memory on platforms
// without mmap support.
package mmap

import (
	"errors"
	"os"
)

// File represents a read-only memory-mapped file.
type File struct {
	Data   []byte
	f      *os.File
	mapped bool
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		f.Close()
		return nil, errors.New("mmap: file size is negative")
	}
	if size == 0 {
		return &File{f: f}, nil
	}

	data, mapped, err := mapFile(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{Data: data, f: f, mapped: mapped}, nil
}

// Close unmaps the memory and closes the underlying file.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.Data != nil && m.mapped {
		err = unmapFile(m.Data)
	}
	m.Data = nil
	if m.f != nil {
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
