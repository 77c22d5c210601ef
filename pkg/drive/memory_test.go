package drive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
)

func Test_Stat_Reports_Size_When_File_Written(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	content := make([]byte, 500)
	require.NoError(t, d.WriteFile("a/b/c", content), "write should succeed")

	st, statErr := d.Stat("a/b/c")
	require.NoError(t, statErr, "stat should succeed")

	assert.False(t, st.IsDir, "path should be a file")
	assert.Equal(t, 500, st.Size, "size should match written length")
}

func Test_Stat_Returns_ErrNotFound_When_Path_Absent(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	_, statErr := d.Stat("missing")
	require.ErrorIs(t, statErr, drive.ErrNotFound)
}

func Test_Unlink_Removes_Path_When_File_Exists(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.WriteFile("x", []byte("abc")))
	require.NoError(t, d.Unlink("x"))

	_, statErr := d.Stat("x")
	require.ErrorIs(t, statErr, drive.ErrNotFound, "deleted path should be gone")
}

func Test_Unlink_Returns_ErrNotFound_When_Path_Absent(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.ErrorIs(t, d.Unlink("missing"), drive.ErrNotFound)
}

func Test_WriteFile_Returns_ErrExists_When_Path_Is_Directory(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.Mkdir("dir"))
	require.ErrorIs(t, d.WriteFile("dir", []byte("x")), drive.ErrExists)
}

func Test_Mkdir_Returns_ErrExists_When_Path_Taken(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.WriteFile("f", []byte("x")))
	require.ErrorIs(t, d.Mkdir("f"), drive.ErrExists, "file path should be rejected")

	require.NoError(t, d.Mkdir("dir"))
	require.ErrorIs(t, d.Mkdir("dir"), drive.ErrExists, "duplicate directory should be rejected")
}

func Test_Counters_Advance_When_Mutations_Commit(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	assert.Equal(t, drive.Counters{}, d.Counters(), "fresh drive starts at zero")

	require.NoError(t, d.WriteFile("a", make([]byte, 10)))
	assert.Equal(t, drive.Counters{Offset: 1, ByteOffset: 10}, d.Counters(), "put advances both counters")

	require.NoError(t, d.Unlink("a"))
	assert.Equal(t, drive.Counters{Offset: 2, ByteOffset: 10}, d.Counters(), "unlink advances only the log")

	require.NoError(t, d.Mkdir("dir"))
	assert.Equal(t, drive.Counters{Offset: 3, ByteOffset: 10}, d.Counters(), "mkdir advances only the log")
}

func Test_Stat_Reports_Creation_Counters_When_Directory_Statted(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.WriteFile("a", make([]byte, 7)))
	require.NoError(t, d.Mkdir("dir"))

	// Later writes must not move the directory's recorded counters.
	require.NoError(t, d.WriteFile("b", make([]byte, 100)))

	st, statErr := d.Stat("dir")
	require.NoError(t, statErr)

	assert.True(t, st.IsDir)
	assert.Equal(t, uint64(1), st.Offset, "offset snapshots the log length at creation")
	assert.Equal(t, uint64(7), st.ByteOffset, "byteOffset snapshots the bytes put before creation")
}

func Test_Read_Serves_Snapshot_When_File_Overwritten_After_Open(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	original := []byte("original content")
	require.NoError(t, d.WriteFile("f", original))

	fd, openErr := d.Open("f")
	require.NoError(t, openErr)

	require.NoError(t, d.WriteFile("f", []byte("replaced")))
	require.NoError(t, d.Unlink("f"))

	buf := make([]byte, len(original))
	n, readErr := d.Read(fd, buf, 0, len(original), 0)
	require.NoError(t, readErr)

	assert.Equal(t, len(original), n)
	assert.Equal(t, original, buf[:n], "descriptor should keep the content bound at open time")

	require.NoError(t, d.Close(fd))
}

func Test_Read_Returns_Zero_When_Position_Past_End(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.WriteFile("f", []byte("abc")))

	fd, openErr := d.Open("f")
	require.NoError(t, openErr)

	buf := make([]byte, 10)
	n, readErr := d.Read(fd, buf, 0, 10, 3)

	require.NoError(t, readErr, "reading past the end is not an error")
	assert.Zero(t, n, "no bytes available past the end")
}

func Test_Read_Returns_ErrBadDescriptor_When_FD_Unknown(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	_, readErr := d.Read(42, make([]byte, 1), 0, 1, 0)
	require.ErrorIs(t, readErr, drive.ErrBadDescriptor)
}

func Test_Close_Succeeds_When_Descriptor_Already_Closed(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	require.NoError(t, d.WriteFile("f", []byte("abc")))

	fd, openErr := d.Open("f")
	require.NoError(t, openErr)

	require.NoError(t, d.Close(fd))
	require.NoError(t, d.Close(fd), "double close is a no-op")
	require.NoError(t, d.Close(9999), "closing an unknown descriptor is a no-op")
}

func Test_Replica_Rejects_Mutations_When_ReadOnly(t *testing.T) {
	t.Parallel()

	replica := drive.NewReplica("some-key")

	require.ErrorIs(t, replica.WriteFile("f", []byte("x")), drive.ErrReadOnly)
	require.ErrorIs(t, replica.Unlink("f"), drive.ErrReadOnly)
	require.ErrorIs(t, replica.Mkdir("d"), drive.ErrReadOnly)

	_, createErr := replica.CreateWriteStream("f")
	require.ErrorIs(t, createErr, drive.ErrReadOnly)
}

func Test_Ready_Fires_Immediately_When_Drive_Is_Primary(t *testing.T) {
	t.Parallel()

	d := drive.NewMemory()

	select {
	case <-d.Ready():
	default:
		t.Fatal("a writable primary should be ready at creation")
	}
}
