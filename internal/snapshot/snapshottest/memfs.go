// Package snapshottest provides an in-memory snapshot.FileSystem for tests.
package snapshottest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/stanstork/stratum-replicator/internal/snapshot"
)

type MemFS struct {
	mu        sync.Mutex
	dirs      map[string]bool // dir -> snapshottable
	snapshots map[string]map[string]time.Time
	Now       func() time.Time

	// Deleted records every successful DeleteSnapshot call as dir/name.
	Deleted []string
}

func NewMemFS() *MemFS {
	return &MemFS{
		dirs:      make(map[string]bool),
		snapshots: make(map[string]map[string]time.Time),
		Now:       time.Now,
	}
}

// Mkdir registers a directory, optionally snapshottable.
func (m *MemFS) Mkdir(dir string, snapshottable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path.Clean(dir)] = snapshottable
}

// AddSnapshot registers a snapshot with an explicit modification time.
func (m *MemFS) AddSnapshot(dir, name string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = path.Clean(dir)
	if m.snapshots[dir] == nil {
		m.snapshots[dir] = make(map[string]time.Time)
	}
	m.snapshots[dir][name] = modTime
}

func (m *MemFS) Snapshots(dir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.snapshots[path.Clean(dir)] {
		names = append(names, name)
	}
	return names
}

func (m *MemFS) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if _, ok := m.dirs[p]; ok {
		return true, nil
	}
	marker := "/" + snapshot.ReservedDir
	if strings.HasSuffix(p, marker) {
		return m.dirs[strings.TrimSuffix(p, marker)], nil
	}
	if i := strings.Index(p, marker+"/"); i >= 0 {
		dir, name := p[:i], p[i+len(marker)+1:]
		_, ok := m.snapshots[dir][name]
		return ok, nil
	}
	return false, nil
}

func (m *MemFS) AllowSnapshot(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path.Clean(dir)] = true
	return nil
}

func (m *MemFS) DisallowSnapshot(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = path.Clean(dir)
	if len(m.snapshots[dir]) > 0 {
		return fmt.Errorf("directory %s has %d snapshot(s), please redo the operation after removing all the snapshots", dir, len(m.snapshots[dir]))
	}
	m.dirs[dir] = false
	return nil
}

func (m *MemFS) CreateSnapshot(_ context.Context, dir, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = path.Clean(dir)
	if !m.dirs[dir] {
		return fmt.Errorf("directory is not a snapshottable directory: %s", dir)
	}
	if m.snapshots[dir] == nil {
		m.snapshots[dir] = make(map[string]time.Time)
	}
	m.snapshots[dir][name] = m.Now()
	return nil
}

func (m *MemFS) DeleteSnapshot(_ context.Context, dir, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = path.Clean(dir)
	if _, ok := m.snapshots[dir][name]; !ok {
		return fmt.Errorf("cannot delete snapshot %s from path %s: the snapshot does not exist", name, dir)
	}
	delete(m.snapshots[dir], name)
	m.Deleted = append(m.Deleted, dir+"/"+name)
	return nil
}

func (m *MemFS) ListSnapshots(_ context.Context, dir string) ([]snapshot.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []snapshot.Info
	for name, t := range m.snapshots[path.Clean(dir)] {
		out = append(out, snapshot.Info{Name: name, ModTime: t})
	}
	return out, nil
}
