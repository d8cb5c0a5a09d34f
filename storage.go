package hood

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// keys persisted on the device between runs
const (
	StorageKeyUserId       = "userId"
	StorageKeyUserLocation = "userLocation"
)

// device key-value cache. `Get` returns "" with a nil error for a missing key;
// a non-nil error means the read itself failed.
type Storage interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Remove(key string) error
}

// one file per key under `dir`
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{
		dir: dir,
	}
}

func (self *FileStorage) path(key string) string {
	return filepath.Join(self.dir, key)
}

func (self *FileStorage) Get(key string) (string, error) {
	value, err := os.ReadFile(self.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(value), nil
}

func (self *FileStorage) Set(key string, value string) error {
	if err := os.MkdirAll(self.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(self.path(key), []byte(value), 0600)
}

func (self *FileStorage) Remove(key string) error {
	err := os.Remove(self.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryStorage struct {
	mutex  sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values: map[string]string{},
	}
}

func (self *MemoryStorage) Get(key string) (string, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.values[key], nil
}

func (self *MemoryStorage) Set(key string, value string) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.values[key] = value
	return nil
}

func (self *MemoryStorage) Remove(key string) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	delete(self.values, key)
	return nil
}
