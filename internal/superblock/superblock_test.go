package superblock

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sb.arf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	sb := New(48, 4096)
	require.NoError(t, sb.WriteTo(f))

	got, err := Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), got.Version)
	assert.Equal(t, uint64(48), got.RootAddress)
	assert.Equal(t, uint64(4096), got.EOFAddress)
	assert.Equal(t, binpkg.Undefined, got.ExtensionAddress)
	assert.Equal(t, 48, got.Size())
}

func TestChecksumMismatch(t *testing.T) {
	data, err := New(48, 96).Encode()
	require.NoError(t, err)
	data[20] ^= 0xFF

	_, err = Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrInvalidSuperblock)
}

func TestNotHDF5(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 64)))
	assert.ErrorIs(t, err, ErrNotHDF5)
}

func TestOldVersionRejected(t *testing.T) {
	data := append([]byte{}, Signature...)
	data = append(data, 0, 0, 0, 0)
	data = append(data, make([]byte, 64)...)
	_, err := Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
