package hood

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFileStorage(t *testing.T) {
	storage := NewFileStorage(t.TempDir())

	value, err := storage.Get(StorageKeyUserId)
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "")

	err = storage.Set(StorageKeyUserId, "7")
	assert.Equal(t, err, nil)

	value, err = storage.Get(StorageKeyUserId)
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "7")

	err = storage.Remove(StorageKeyUserId)
	assert.Equal(t, err, nil)

	value, err = storage.Get(StorageKeyUserId)
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "")

	// removing a missing key is not an error
	err = storage.Remove(StorageKeyUserId)
	assert.Equal(t, err, nil)
}

func TestFileStorageLocationRoundTrip(t *testing.T) {
	storage := NewFileStorage(t.TempDir())

	location := &UserLocation{
		City:      strPtr("Toronto"),
		Region:    strPtr("Ontario"),
		Country:   strPtr("Canada"),
		Latitude:  floatPtr(43.7734535),
		Longitude: floatPtr(-79.5018684),
	}
	encoded, err := encodeUserLocation(location)
	assert.Equal(t, err, nil)

	err = storage.Set(StorageKeyUserLocation, encoded)
	assert.Equal(t, err, nil)

	value, err := storage.Get(StorageKeyUserLocation)
	assert.Equal(t, err, nil)

	decoded, err := decodeUserLocation(value)
	assert.Equal(t, err, nil)
	assert.Equal(t, *decoded.City, "Toronto")
	assert.Equal(t, *decoded.Latitude, 43.7734535)
	assert.Equal(t, decoded.LatitudeDelta, nil)
	assert.Equal(t, decoded.Resolved(), true)
}
