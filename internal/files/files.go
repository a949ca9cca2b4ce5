// Package files implements small file system helpers: existence checks and locked, atomic writes.
package files

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating the directory of a written file.
const DefaultDirCreationPerm = 0755

// Exists returns whether the path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteLocked writes data to filePath atomically: it writes to filePath+".tmp" and renames it.
//
// It uses filePath+".lock" to coordinate with other processes (or goroutines) writing the same
// file at the same time: the last writer wins, but readers never see a partially written file.
func WriteLocked(filePath string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}
	lockPath := filePath + ".lock"
	var mainErr error
	errLock := ExecOnFileLock(lockPath, func() {
		tmpPath := filePath + ".tmp"
		if err := os.WriteFile(tmpPath, data, perm); err != nil {
			mainErr = errors.Wrapf(err, "failed to write temporary file %q", tmpPath)
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				klog.Warningf("failed removing temporary file %q: %v", tmpPath, err)
			}
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move %q to %q", tmpPath, filePath)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to write %q", lockPath, filePath)
	}
	return nil
}

// ExecOnFileLock opens the lockPath file (or creates it if it doesn't yet exist), locks it, and executes fn.
// If lockPath is already locked, it polls every 50 to 100 milliseconds (randomly) until it acquires the lock.
//
// The lockPath is not removed.
func ExecOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(50+rand.IntN(50)))
	}

	// Unlock even if fn panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	fn()
	return
}
