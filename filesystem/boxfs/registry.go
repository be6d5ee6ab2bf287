package boxfs

import (
	"path/filepath"
	"sync"

	"github.com/Joyfolk/boxfs/boxerr"
)

// registry is the process-wide table of open containers, keyed by resolved
// host path, so a second Open/Create against a container already open in
// this process fails fast instead of racing two independent FileSystem
// instances against the same file.
var (
	registryMu sync.Mutex
	registry   = make(map[string]*FileSystem)
)

func registryKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", boxerr.Wrap(boxerr.IoFailure, path, err)
	}
	return abs, nil
}

// registryInsert atomically checks for and inserts a new entry under path's
// resolved key. Fails AlreadyExists if the container is already open here.
func registryInsert(path string, fs *FileSystem) (string, error) {
	key, err := registryKey(path)
	if err != nil {
		return "", err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[key]; exists {
		return "", boxerr.Newf(boxerr.AlreadyExists, path, "container is already open in this process")
	}
	registry[key] = fs
	return key, nil
}

func registryRemove(key string) {
	if key == "" {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, key)
}
