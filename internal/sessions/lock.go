package sessions

import (
	"fmt"
	"os"
	"time"
)

const (
	lockStaleAfter   = 10 * time.Second
	lockBackoffBase  = 50 * time.Millisecond
	lockMaxAttempts  = 6
)

// fileLock is an advisory lock implemented as a create-exclusive lock file.
// A lock file older than lockStaleAfter is assumed to belong to a crashed
// process and is broken. The PID is written into the file for operator
// inspection, same as the nebo-style instance lock.
type fileLock struct {
	path string
}

// acquire takes the lock, retrying with exponential backoff (50 ms
// doubling) up to lockMaxAttempts times before giving up.
func (l *fileLock) acquire() error {
	backoff := lockBackoffBase
	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}

		// Held by someone else. Break it if stale.
		if info, serr := os.Stat(l.path); serr == nil {
			if time.Since(info.ModTime()) > lockStaleAfter {
				_ = os.Remove(l.path)
				continue
			}
		}

		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("session store lock busy: %s", l.path)
}

// release removes the lock file.
func (l *fileLock) release() {
	_ = os.Remove(l.path)
}
