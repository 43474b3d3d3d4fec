// Package files holds file system helpers shared by the vocabulary and corpus packages.
package files

import (
	"bufio"
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating the parent directory of a written file.
const DefaultDirCreationPerm = 0755

// LockPollPeriod is the minimum wait between attempts to acquire a busy lock. The actual wait is randomized
// between LockPollPeriod and twice its value.
var LockPollPeriod = 100 * time.Millisecond

// Exists returns true if the path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExecOnFileLock opens the lockPath file (or creates it if it doesn't yet exist), locks it, and executes fn.
// If lockPath is already locked, it polls until it acquires the lock or ctx is done.
//
// The lockPath is not removed.
func ExecOnFileLock(ctx context.Context, lockPath string, fn func() error) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		wait := LockPollPeriod + time.Duration(rand.Int64N(int64(LockPollPeriod)+1))
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for lock %q", lockPath)
		case <-time.After(wait):
		}
	}

	// Unlock even if fn panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	return fn()
}

// WriteAtomically writes filePath with the contents produced by write, such that readers never see a
// partially written file: the contents go to a temporary file that is renamed over filePath on success.
//
// Concurrent writers (in this or other processes) are serialized with the lock file filePath+".lock",
// and the last one wins.
func WriteAtomically(ctx context.Context, filePath string, write func(w io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	err := ExecOnFileLock(ctx, lockPath, func() error {
		tmpPath := filePath + ".writing"
		tmpFile, err := os.Create(tmpPath)
		if err != nil {
			return errors.Wrapf(err, "creating temporary file %q", tmpPath)
		}
		var tmpFileClosed bool
		defer func() {
			// On error, close and remove the unfinished temporary file.
			if !tmpFileClosed {
				if err := tmpFile.Close(); err != nil {
					klog.Warningf("Failed closing temporary file %q: %v", tmpPath, err)
				}
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
				}
			}
		}()

		buffered := bufio.NewWriter(tmpFile)
		if err := write(buffered); err != nil {
			return errors.WithMessagef(err, "while writing %q", tmpPath)
		}
		if err := buffered.Flush(); err != nil {
			return errors.Wrapf(err, "while writing %q", tmpPath)
		}
		tmpFileClosed = true
		if err := tmpFile.Close(); err != nil {
			_ = os.Remove(tmpPath)
			return errors.Wrapf(err, "failed to close temporary file %q", tmpPath)
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			_ = os.Remove(tmpPath)
			return errors.Wrapf(err, "failed to move %q to %q", tmpPath, filePath)
		}
		return nil
	})
	if err != nil {
		return errors.WithMessagef(err, "while writing %q", filePath)
	}
	return nil
}
