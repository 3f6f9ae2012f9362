package snapshot

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// ReservedDir is the marker subpath present on snapshottable directories.
	ReservedDir = ".snapshot"
	// NamePrefix marks snapshots created by replication runs.
	NamePrefix = "replication-snapshot-"

	nameTimeLayout = "20060102150405.000"
)

// Info describes one snapshot of a directory.
type Info struct {
	Name    string
	ModTime time.Time
}

// FileSystem is the subset of a snapshot-capable filesystem the manager needs.
type FileSystem interface {
	Exists(ctx context.Context, p string) (bool, error)
	AllowSnapshot(ctx context.Context, dir string) error
	DisallowSnapshot(ctx context.Context, dir string) error
	CreateSnapshot(ctx context.Context, dir, name string) error
	DeleteSnapshot(ctx context.Context, dir, name string) error
	ListSnapshots(ctx context.Context, dir string) ([]Info, error)
}

type Manager struct {
	fs     FileSystem
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Manager)

// WithClock overrides the time source used to compute eviction cutoffs.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(fs FileSystem, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		fs:     fs,
		now:    time.Now,
		logger: logger.With().Str("component", "snapshot_manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name builds the snapshot name for a policy run started at t.
func Name(policy string, t time.Time) string {
	return NamePrefix + policy + "-" + strings.Replace(t.UTC().Format(nameTimeLayout), ".", "", 1)
}

func (m *Manager) IsSnapshottable(ctx context.Context, dir string) (bool, error) {
	ok, err := m.fs.Exists(ctx, path.Join(dir, ReservedDir))
	if err != nil {
		return false, errors.Wrapf(err, "failed to probe snapshot capability of %s", dir)
	}
	return ok, nil
}

func (m *Manager) AllowSnapshot(ctx context.Context, dir string) error {
	if err := m.fs.AllowSnapshot(ctx, dir); err != nil {
		return errors.Wrapf(err, "failed to allow snapshots on %s", dir)
	}
	return nil
}

// DisallowSnapshot fails if the filesystem refuses, e.g. while snapshots exist.
func (m *Manager) DisallowSnapshot(ctx context.Context, dir string) error {
	if err := m.fs.DisallowSnapshot(ctx, dir); err != nil {
		return errors.Wrapf(err, "failed to disallow snapshots on %s", dir)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, dir, name string) error {
	if err := m.fs.CreateSnapshot(ctx, dir, name); err != nil {
		return errors.Wrapf(err, "failed to create snapshot %s on %s", name, dir)
	}
	m.logger.Info().Str("dir", dir).Str("snapshot", name).Msg("snapshot created")
	return nil
}

func (m *Manager) Exists(ctx context.Context, dir, name string) (bool, error) {
	return m.fs.Exists(ctx, path.Join(dir, ReservedDir, name))
}

// LatestCommon returns the newest replication snapshot of targetDir that also
// exists on sourceDir, or "" when there is none.
func (m *Manager) LatestCommon(ctx context.Context, sourceDir, targetDir string) (string, error) {
	targetSnaps, err := m.fs.ListSnapshots(ctx, targetDir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list snapshots of %s", targetDir)
	}
	sortNewestFirst(targetSnaps)

	for _, s := range targetSnaps {
		if !strings.HasPrefix(s.Name, NamePrefix) {
			continue
		}
		ok, err := m.Exists(ctx, sourceDir, s.Name)
		if err != nil {
			return "", errors.Wrapf(err, "failed to probe snapshot %s on %s", s.Name, sourceDir)
		}
		if ok {
			return s.Name, nil
		}
	}
	return "", nil
}

// Evict deletes snapshots of dir older than ageExpr, oldest first, while
// always keeping the retain most recent ones. It returns the deleted names.
func (m *Manager) Evict(ctx context.Context, dir, ageExpr string, retain int) ([]string, error) {
	age, err := ParseAge(ageExpr)
	if err != nil {
		return nil, err
	}
	cutoff := m.now().Add(-age)

	snaps, err := m.fs.ListSnapshots(ctx, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list snapshots of %s", dir)
	}
	if retain < 0 {
		retain = 0
	}
	if len(snaps) <= retain {
		return nil, nil
	}

	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].ModTime.Before(snaps[j].ModTime) })

	var evicted []string
	for _, s := range snaps[:len(snaps)-retain] {
		if !s.ModTime.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		// A concurrent run may have removed it since the listing.
		ok, err := m.Exists(ctx, dir, s.Name)
		if err != nil {
			return evicted, errors.Wrapf(err, "failed to probe snapshot %s on %s", s.Name, dir)
		}
		if !ok {
			continue
		}
		if err := m.fs.DeleteSnapshot(ctx, dir, s.Name); err != nil {
			return evicted, errors.Wrapf(err, "failed to delete snapshot %s on %s", s.Name, dir)
		}
		evicted = append(evicted, s.Name)
	}

	if len(evicted) > 0 {
		m.logger.Info().Str("dir", dir).Strs("snapshots", evicted).Msg("evicted snapshots")
	}
	return evicted, nil
}

func sortNewestFirst(snaps []Info) {
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].ModTime.After(snaps[j].ModTime) })
}
