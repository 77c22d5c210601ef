package drive

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// readStreamChunkSize bounds how many bytes a read stream hands out per
// Read call, so consumers see a multi-chunk sequence instead of one slab.
const readStreamChunkSize = 64

// readStream is a finite, single-pass, ordered byte stream over a window of
// a file's content. The window is captured when the stream is created, so a
// later overwrite of the path does not change what the stream yields.
type readStream struct {
	window []byte
	pos    int
	closed bool
}

// CreateReadStream implements [Drive].
//
// The window [start, start+length) is clipped to the content bounds;
// requesting past the end yields an empty stream rather than an error.
func (d *Memory) CreateReadStream(path string, start, length int) (io.ReadCloser, error) {
	d.mu.Lock()

	idx, exists := d.files[path]
	if !exists {
		d.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	content := d.blobs[d.log[idx].BlobHash]
	d.mu.Unlock()

	if start < 0 || start > len(content) {
		start = len(content)
	}

	end := start + length
	if length < 0 || end > len(content) {
		end = len(content)
	}

	return &readStream{window: content[start:end]}, nil
}

// Read yields the next chunk of the window, at most readStreamChunkSize
// bytes at a time.
func (s *readStream) Read(p []byte) (int, error) {
	if s.closed || s.pos >= len(s.window) {
		return 0, io.EOF
	}

	n := len(s.window) - s.pos
	if n > readStreamChunkSize {
		n = readStreamChunkSize
	}

	if n > len(p) {
		n = len(p)
	}

	copy(p, s.window[s.pos:s.pos+n])
	s.pos += n

	return n, nil
}

// Close ends the stream early. Reading after Close returns io.EOF.
func (s *readStream) Close() error {
	s.closed = true

	return nil
}

// writeStream buffers content and commits it as a single write when closed.
type writeStream struct {
	drive *Memory
	path  string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// CreateWriteStream implements [Drive]. Nothing is visible at path until
// the stream is closed; Close performs the commit and reports its error.
func (d *Memory) CreateWriteStream(path string) (io.WriteCloser, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}

	return &writeStream{drive: d, path: path}, nil
}

// Write appends to the pending content.
func (s *writeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	return s.buf.Write(p)
}

// Close commits the buffered content. A second Close is a no-op.
func (s *writeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.drive.WriteFile(s.path, s.buf.Bytes())
}
