package artifact_manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultArchivesDir = "archives"
	DefaultLockTTL     = 10 * time.Minute
	lockFileName       = ".lock"
)

// ErrDayLocked means another run holds the lock for the same trading day.
var ErrDayLocked = errors.New("another run is active for this trading day")

// Manager lays out downloaded archives as <baseDir>/<YYYYMMDD>/<name>.
// Paths depend only on the trading day and archive name, so repeated runs
// reuse completed downloads.
type Manager struct {
	baseDir string
	lockTTL time.Duration
}

// NewManager creates a new Artifact Manager instance rooted at baseDir.
func NewManager(baseDir string, lockTTL time.Duration) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultArchivesDir
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archives directory: %w", err)
	}
	return &Manager{baseDir: baseDir, lockTTL: lockTTL}, nil
}

func (m *Manager) BaseDir() string {
	return m.baseDir
}

// DayDir returns the directory for a trading day.
// Example: data/aemo/archives/20251027
func (m *Manager) DayDir(day time.Time) string {
	return filepath.Join(m.baseDir, day.Format("20060102"))
}

// ArchivePath returns the local path for an archive of a trading day.
func (m *Manager) ArchivePath(day time.Time, name string) string {
	return filepath.Join(m.DayDir(day), filepath.Base(name))
}

// EnsureDayDir creates the day directory if needed.
func (m *Manager) EnsureDayDir(day time.Time) error {
	if err := os.MkdirAll(m.DayDir(day), 0750); err != nil {
		return fmt.Errorf("failed to create day directory: %w", err)
	}
	return nil
}

// ListArchives returns the completed archives stored in dir whose names start
// with prefix (case-insensitive), sorted by name. Temp files are ignored.
func ListArchives(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}
	var paths []string
	lp := strings.ToLower(prefix)
	for _, e := range entries {
		name := e.Name()
		lower := strings.ToLower(name)
		if e.IsDir() || !strings.HasPrefix(lower, lp) || !strings.HasSuffix(lower, ".zip") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// DayLock is a held lock on a trading day's archive directory. While held it
// refreshes the lock file's mtime so a long run never looks stale.
type DayLock struct {
	path  string
	token string
	stop  chan struct{}
	done  chan struct{}
}

type lockContent struct {
	PID   int    `json:"pid"`
	Token string `json:"token"`
	Time  int64  `json:"time"`
}

// ErrLockLost means the lock file no longer belongs to this holder.
var ErrLockLost = errors.New("day lock was taken over by another run")

// LockTTL is the age after which an unrefreshed lock is considered stale.
func (m *Manager) LockTTL() time.Duration {
	return m.lockTTL
}

// AcquireDayLock takes an exclusive lock file in the day directory. A lock
// older than the TTL is treated as left behind by a killed run and replaced.
// The returned lock keeps itself fresh until Release.
func (m *Manager) AcquireDayLock(day time.Time) (*DayLock, error) {
	if err := m.EnsureDayDir(day); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(m.DayDir(day), lockFileName)
	token := uuid.NewString()

	for i := 0; i < 2; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_ = json.NewEncoder(f).Encode(lockContent{PID: os.Getpid(), Token: token, Time: time.Now().Unix()})
			_ = f.Close()
			l := &DayLock{path: lockPath, token: token}
			l.keepAlive(m.lockTTL / 3)
			return l, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		fi, statErr := os.Stat(lockPath)
		if statErr != nil {
			continue // released between our attempts
		}
		if time.Since(fi.ModTime()) < m.lockTTL {
			return nil, fmt.Errorf("%w (lock %s)", ErrDayLocked, lockPath)
		}
		_ = os.Remove(lockPath)
	}
	return nil, fmt.Errorf("%w (lock %s)", ErrDayLocked, lockPath)
}

func (l *DayLock) owned() bool {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	var c lockContent
	return json.Unmarshal(raw, &c) == nil && c.Token == l.token
}

// Touch marks the lock as fresh. It fails once another run has replaced it.
func (l *DayLock) Touch() error {
	if !l.owned() {
		return ErrLockLost
	}
	now := time.Now()
	return os.Chtimes(l.path, now, now)
}

func (l *DayLock) keepAlive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				if l.Touch() != nil {
					return
				}
			}
		}
	}()
}

func (l *DayLock) stopKeepAlive() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop = nil
}

// Release stops refreshing and removes the lock file if this run still owns
// it. Safe to call on a nil lock.
func (l *DayLock) Release() {
	if l == nil || l.path == "" {
		return
	}
	l.stopKeepAlive()
	if l.owned() {
		_ = os.Remove(l.path)
	}
}
