package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DecodeAnnounce_Recovers_Fields_When_Frame_Valid(t *testing.T) {
	t.Parallel()

	frame := encodeAnnounce("deadbeef", 42)

	key, length, decodeErr := decodeAnnounce(frame)
	require.NoError(t, decodeErr)

	assert.Equal(t, "deadbeef", key)
	assert.Equal(t, uint64(42), length)
}

func Test_DecodeEntry_Recovers_Entry_When_Frame_Valid(t *testing.T) {
	t.Parallel()

	blob := []byte("some file content with repetition repetition repetition")
	entry := logEntry{
		Seq:      7,
		Kind:     entryPut,
		Path:     "a/b/c",
		BlobHash: "0123abcd",
	}

	decoded, gotBlob, decodeErr := decodeEntry(encodeEntry(entry, blob))
	require.NoError(t, decodeErr)

	assert.Equal(t, entry.Seq, decoded.Seq)
	assert.Equal(t, entry.Kind, decoded.Kind)
	assert.Equal(t, entry.Path, decoded.Path)
	assert.Equal(t, entry.BlobHash, decoded.BlobHash)
	assert.Equal(t, len(blob), decoded.BlobSize, "blob size is derived from the decompressed payload")
	assert.Equal(t, blob, gotBlob)
}

func Test_DecodeEntry_Preserves_Counters_When_Entry_Is_Mkdir(t *testing.T) {
	t.Parallel()

	entry := logEntry{
		Seq:        3,
		Kind:       entryMkdir,
		Path:       "dir",
		RecOffset:  2,
		RecByteOff: 117,
	}

	decoded, _, decodeErr := decodeEntry(encodeEntry(entry, nil))
	require.NoError(t, decodeErr)

	assert.Equal(t, uint64(2), decoded.RecOffset)
	assert.Equal(t, uint64(117), decoded.RecByteOff)
}

func Test_DecodeEntry_Returns_Error_When_Frame_Truncated(t *testing.T) {
	t.Parallel()

	frame := encodeEntry(logEntry{Kind: entryPut, Path: "p", BlobHash: "h"}, []byte("content"))

	// Every prefix of a valid frame must fail cleanly, never panic.
	for cut := 1; cut < len(frame); cut++ {
		_, _, decodeErr := decodeEntry(frame[:cut])
		require.Error(t, decodeErr, "truncation at %d should be rejected", cut)
	}
}

func Test_HandleAnnounce_Enforces_Key_Only_On_Replica(t *testing.T) {
	t.Parallel()

	replica := NewReplica("expected-key")
	require.ErrorIs(t, replica.handleAnnounce("wrong-key", 0), ErrKeyMismatch,
		"the replica knows which drive it asked for")

	// A primary must swallow a mismatched announce: failing its own link
	// would tear the session down before the peer sees the mismatch.
	primary := NewMemory()
	require.NoError(t, primary.handleAnnounce("wrong-key", 0))
}

func Test_HandleFrame_Returns_Error_When_Kind_Unknown(t *testing.T) {
	t.Parallel()

	d := NewMemory()

	require.ErrorIs(t, d.handleFrame([]byte{0xFF}), errFrameKind)
	require.ErrorIs(t, d.handleFrame(nil), errFrameTruncated)
}
