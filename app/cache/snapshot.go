package cache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const snapshotFileName = "last_seen.txt"

// Snapshot is the coarse, file-backed set of content ids observed in the
// previous run for one community. It is a pre-filter only; the record store
// stays authoritative, and a miss never implies absence in the store.
type Snapshot struct {
	dir       string
	community string
	ids       map[string]struct{}
}

func NewSnapshot(dir, community string) *Snapshot {
	return &Snapshot{
		dir:       dir,
		community: community,
		ids:       make(map[string]struct{}),
	}
}

// Load reads the previous run's ids. A missing file means an empty set, not
// an error (first run, or the snapshot was cleared).
func (s *Snapshot) Load() error {
	f, err := os.Open(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	return nil
}

func (s *Snapshot) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Snapshot) Len() int {
	return len(s.ids)
}

// Replace rewrites the snapshot with this run's ids. The write goes through a
// temp file and rename so a crash mid-write never leaves a truncated
// snapshot behind.
func (s *Snapshot) Replace(ids []string) error {
	dir := filepath.Dir(s.path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}

	return nil
}

func (s *Snapshot) path() string {
	return filepath.Join(s.dir, s.community, snapshotFileName)
}
