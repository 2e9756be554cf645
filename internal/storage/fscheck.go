package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errNoDetector is returned by detectors on platforms without statfs support.
var errNoDetector = errors.New("no filesystem detector for this platform")

// NetworkFSError reports a journal path that lives on a network mount.
type NetworkFSError struct {
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("journal path %q is on network filesystem %s; set journal.path to a local file or disable the journal",
		e.Path, e.FSType)
}

// remoteFS lists filesystem names on which SQLite locking cannot be trusted.
var remoteFS = []string{"afpfs", "cifs", "nfs", "nfs4", "smb2", "smbfs", "webdav"}

// fsDetector names the filesystem holding an existing path.
type fsDetector func(existing string) (string, error)

// ensureLocal fails when dbPath, or the closest ancestor that exists yet,
// is on a network filesystem. Platforms without a detector pass.
func ensureLocal(dbPath string, detect fsDetector) error {
	existing, err := closestExisting(dbPath)
	if err != nil {
		return fmt.Errorf("resolve journal path: %w", err)
	}
	fsType, err := detect(existing)
	switch {
	case errors.Is(err, errNoDetector):
		return nil
	case err != nil:
		return fmt.Errorf("inspect filesystem of %s: %w", existing, err)
	case isRemote(fsType):
		return &NetworkFSError{Path: dbPath, FSType: fsType}
	}
	return nil
}

func closestExisting(p string) (string, error) {
	dir, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("%s has no existing ancestor", p)
		}
		dir = up
	}
}

func isRemote(fsType string) bool {
	name := strings.ToLower(strings.TrimSpace(fsType))
	for _, r := range remoteFS {
		if name == r {
			return true
		}
	}
	return false
}
