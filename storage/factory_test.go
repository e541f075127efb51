package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

func TestStorageBackendFor(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	t.Run("file backend", func(t *testing.T) {
		backend, err := factory.StorageBackendFor("file://" + t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, backend.Name(), "file-")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := factory.StorageBackendFor("ftp://example.com/docs")
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})

	t.Run("empty file path", func(t *testing.T) {
		_, err := factory.StorageBackendFor("file://")
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})

	t.Run("vault without mount path", func(t *testing.T) {
		_, err := factory.StorageBackendFor("vault://vault.local:8200/")
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})
}

func TestCreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	t.Run("skips invalid URIs", func(t *testing.T) {
		backend, err := factory.CreateMultiBackend([]string{
			"file://" + t.TempDir(),
			"bogus://nowhere",
		})
		require.NoError(t, err)
		assert.Contains(t, backend.Name(), "multi[")
	})

	t.Run("fails when nothing valid remains", func(t *testing.T) {
		_, err := factory.CreateMultiBackend([]string{"bogus://nowhere"})
		assert.Error(t, err)
	})
}
