package drive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
)

// Wire frame kinds.
const (
	frameAnnounce uint8 = 1
	frameEntry    uint8 = 2
)

// Wire errors.
var (
	errFrameTruncated = errors.New("drive: truncated replication frame")
	errFrameKind      = errors.New("drive: unknown replication frame kind")
)

// Link is one endpoint of a duplex replication session.
//
// A session speaks a binary frame protocol: one announce frame carrying the
// peer's root key and current log length, followed by entry frames in log
// order. Entry payloads are snappy-compressed on the wire.
//
// The two directions are exposed as explicit channels. The owner of a pair
// of links (the replication harness) wires each peer's Out to the other
// peer's In; a link never pipes into itself, which keeps teardown order
// explicit.
type Link struct {
	drive *Memory
	live  bool

	out  chan []byte
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// Replicate implements [Drive]. It starts the session's background send and
// receive loops and returns immediately; synchronization proceeds outside
// the caller's control until the link is closed.
func (d *Memory) Replicate(live bool) (*Link, error) {
	link := &Link{
		drive: d,
		live:  live,
		out:   make(chan []byte, 16),
		in:    make(chan []byte, 16),
		done:  make(chan struct{}),
	}

	go d.sendLoop(link)
	go d.recvLoop(link)

	return link, nil
}

// Out is the stream of frames this peer produces.
func (l *Link) Out() <-chan []byte { return l.out }

// In is the stream of frames this peer consumes.
func (l *Link) In() chan<- []byte { return l.in }

// Done is closed when the session ends, normally or on protocol failure.
func (l *Link) Done() <-chan struct{} { return l.done }

// Err reports the protocol failure that ended the session, if any.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.err
}

// Close tears the session down. Safe to call more than once.
func (l *Link) Close() error {
	l.once.Do(func() {
		close(l.done)

		// Wake a sendLoop parked on the drive's append signal.
		l.drive.mu.Lock()
		l.drive.cond.Broadcast()
		l.drive.mu.Unlock()
	})

	return nil
}

// fail records the first protocol error and ends the session.
func (l *Link) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()

	_ = l.Close()
}

// send delivers one frame, giving up if the session ends first.
func (l *Link) send(frame []byte) bool {
	select {
	case l.out <- frame:
		return true
	case <-l.done:
		return false
	}
}

func (l *Link) isDone() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// sendLoop announces this peer's state, then streams log entries in order.
// A read-only replica announces and stops; it has nothing the remote side
// lacks. A live session keeps pushing entries as the log grows; a non-live
// session stops at the length announced when it began.
func (d *Memory) sendLoop(l *Link) {
	d.mu.Lock()
	initial := uint64(len(d.log))
	d.mu.Unlock()

	if !l.send(encodeAnnounce(d.key, initial)) {
		return
	}

	if d.readOnly {
		return
	}

	var sent uint64

	for {
		if !l.live && sent >= initial {
			return
		}

		d.mu.Lock()

		for uint64(len(d.log)) <= sent {
			if l.isDone() {
				d.mu.Unlock()

				return
			}

			d.cond.Wait()
		}

		entry := d.log[sent]

		var blob []byte
		if entry.Kind == entryPut {
			blob = d.blobs[entry.BlobHash]
		}

		d.mu.Unlock()

		if !l.send(encodeEntry(entry, blob)) {
			return
		}

		sent++
	}
}

// recvLoop applies incoming frames until the session ends.
func (d *Memory) recvLoop(l *Link) {
	for {
		select {
		case <-l.done:
			return

		case frame, ok := <-l.in:
			if !ok {
				_ = l.Close()

				return
			}

			handleErr := d.handleFrame(frame)
			if handleErr != nil {
				l.fail(handleErr)

				return
			}
		}
	}
}

// handleFrame dispatches one decoded wire frame.
func (d *Memory) handleFrame(frame []byte) error {
	if len(frame) == 0 {
		return errFrameTruncated
	}

	switch frame[0] {
	case frameAnnounce:
		key, length, decodeErr := decodeAnnounce(frame)
		if decodeErr != nil {
			return decodeErr
		}

		return d.handleAnnounce(key, length)

	case frameEntry:
		entry, blob, decodeErr := decodeEntry(frame)
		if decodeErr != nil {
			return decodeErr
		}

		if !d.readOnly {
			// A primary can see its own entries echoed by an
			// overlapping session; applyRemote drops duplicates.
			return nil
		}

		return d.applyRemote(entry, blob)

	default:
		return fmt.Errorf("%w: %d", errFrameKind, frame[0])
	}
}

// -----------------------------------------------------------------------------
// Frame codec. Little-endian, length-prefixed strings, snappy payloads.
// -----------------------------------------------------------------------------

// encodeAnnounce builds: [kind u8][keyLen u32][key][logLen u64].
func encodeAnnounce(key string, length uint64) []byte {
	frame := make([]byte, 0, 1+4+len(key)+8)
	frame = append(frame, frameAnnounce)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(key)))
	frame = append(frame, key...)
	frame = binary.LittleEndian.AppendUint64(frame, length)

	return frame
}

func decodeAnnounce(frame []byte) (string, uint64, error) {
	cursor := frameCursor{buf: frame, pos: 1}

	key := cursor.str()
	length := cursor.u64()

	if cursor.bad {
		return "", 0, errFrameTruncated
	}

	return key, length, nil
}

// encodeEntry builds:
//
//	[kind u8][seq u64][entryKind u8][recOffset u64][recByteOff u64]
//	[pathLen u32][path][hashLen u32][hash][blobLen u32][snappy(blob)]
func encodeEntry(entry logEntry, blob []byte) []byte {
	compressed := snappy.Encode(nil, blob)

	frame := make([]byte, 0, 1+8+1+8+8+4+len(entry.Path)+4+len(entry.BlobHash)+4+len(compressed))
	frame = append(frame, frameEntry)
	frame = binary.LittleEndian.AppendUint64(frame, entry.Seq)
	frame = append(frame, entry.Kind)
	frame = binary.LittleEndian.AppendUint64(frame, entry.RecOffset)
	frame = binary.LittleEndian.AppendUint64(frame, entry.RecByteOff)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(entry.Path)))
	frame = append(frame, entry.Path...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(entry.BlobHash)))
	frame = append(frame, entry.BlobHash...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(compressed)))
	frame = append(frame, compressed...)

	return frame
}

func decodeEntry(frame []byte) (logEntry, []byte, error) {
	cursor := frameCursor{buf: frame, pos: 1}

	var entry logEntry

	entry.Seq = cursor.u64()
	entry.Kind = cursor.u8()
	entry.RecOffset = cursor.u64()
	entry.RecByteOff = cursor.u64()
	entry.Path = cursor.str()
	entry.BlobHash = cursor.str()
	compressed := cursor.bytes()

	if cursor.bad {
		return logEntry{}, nil, errFrameTruncated
	}

	blob, decompressErr := snappy.Decode(nil, compressed)
	if decompressErr != nil {
		return logEntry{}, nil, fmt.Errorf("drive: corrupt entry payload: %w", decompressErr)
	}

	entry.BlobSize = len(blob)

	return entry, blob, nil
}

// frameCursor walks a frame buffer, flagging any out-of-bounds read instead
// of panicking on a malformed frame.
type frameCursor struct {
	buf []byte
	pos int
	bad bool
}

func (c *frameCursor) u8() uint8 {
	if c.bad || c.pos+1 > len(c.buf) {
		c.bad = true

		return 0
	}

	v := c.buf[c.pos]
	c.pos++

	return v
}

func (c *frameCursor) u32() uint32 {
	if c.bad || c.pos+4 > len(c.buf) {
		c.bad = true

		return 0
	}

	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4

	return v
}

func (c *frameCursor) u64() uint64 {
	if c.bad || c.pos+8 > len(c.buf) {
		c.bad = true

		return 0
	}

	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8

	return v
}

func (c *frameCursor) bytes() []byte {
	n := int(c.u32())
	if c.bad || c.pos+n > len(c.buf) {
		c.bad = true

		return nil
	}

	v := c.buf[c.pos : c.pos+n]
	c.pos += n

	return v
}

func (c *frameCursor) str() string {
	return string(c.bytes())
}
