package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"firestige.xyz/mediatx/internal/core"
)

// FileSource reads consecutive frame-sized chunks of a raw media file.
type FileSource struct {
	path string
	f    *os.File
}

// OpenFile opens path for reading from its first byte.
func OpenFile(path string) (*FileSource, error) {
	fs := &FileSource{path: path}
	if err := fs.open(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSource) open() error {
	f, err := os.Open(fs.path)
	if err != nil {
		return fmt.Errorf("failed to open input file %s: %w", fs.path, err)
	}
	fs.f = f
	return nil
}

// Fill zeroes p and reads exactly len(p) bytes into it. A short read or a
// closed handle is exhaustion; other read errors are returned as they are.
// Either way the handle is closed and only Rewind makes the source readable
// again.
func (fs *FileSource) Fill(p []byte, _ uint64) (int, error) {
	clear(p)
	if fs.f == nil {
		return 0, core.ErrExhausted
	}
	n, err := io.ReadFull(fs.f, p)
	if err == nil {
		return n, nil
	}
	_ = fs.f.Close()
	fs.f = nil
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, core.ErrExhausted
	}
	return n, fmt.Errorf("failed to read input file %s: %w", fs.path, err)
}

// Rewind reopens the file at its start.
func (fs *FileSource) Rewind() error {
	if fs.f != nil {
		_ = fs.f.Close()
		fs.f = nil
	}
	return fs.open()
}

func (fs *FileSource) Close() error {
	if fs.f == nil {
		return nil
	}
	err := fs.f.Close()
	fs.f = nil
	return err
}

func (fs *FileSource) String() string { return fs.path }
