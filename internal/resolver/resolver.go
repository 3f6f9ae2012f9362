package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// Mode is the concrete way a policy run moves data.
type Mode string

const (
	ModeHive        Mode = "HIVE"
	ModePlain       Mode = "FS"
	ModeSnapshot    Mode = "FS_SNAPSHOT"
	ModeRemoteStore Mode = "FS_HCFS"
)

// DefaultScheme is the scheme of the clusters' primary distributed filesystem.
const DefaultScheme = "hdfs"

// SnapshotProbe reports snapshot capability of a fully qualified directory.
type SnapshotProbe interface {
	IsSnapshottable(ctx context.Context, dir string) (bool, error)
}

// Endpoints is what the resolver needs to know about a run.
type Endpoints struct {
	Type       models.ReplicationType
	Source     string // fully qualified source dataset
	Target     string // fully qualified target dataset
	TDEEnabled bool
}

type Resolver struct {
	probe  SnapshotProbe
	scheme string
	logger zerolog.Logger
}

func New(probe SnapshotProbe, logger zerolog.Logger) *Resolver {
	return &Resolver{
		probe:  probe,
		scheme: DefaultScheme,
		logger: logger.With().Str("component", "replication_resolver").Logger(),
	}
}

// Resolve picks the replication mode. The checks run in a fixed order:
// remote store, then encryption, then snapshot capability of both sides.
// The target is probed only when the source is snapshottable.
func (r *Resolver) Resolve(ctx context.Context, e Endpoints) (Mode, error) {
	switch e.Type {
	case models.ReplicationTypeHive:
		return ModeHive, nil
	case models.ReplicationTypeFS:
	default:
		return "", fmt.Errorf("unsupported replication type %q", e.Type)
	}

	if r.isRemote(e.Source) || r.isRemote(e.Target) {
		return ModeRemoteStore, nil
	}
	if e.TDEEnabled {
		return ModePlain, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	ok, err := r.probe.IsSnapshottable(ctx, e.Source)
	if err != nil {
		return "", errors.Wrap(err, "failed to probe source dataset")
	}
	if !ok {
		return ModePlain, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	ok, err = r.probe.IsSnapshottable(ctx, e.Target)
	if err != nil {
		return "", errors.Wrap(err, "failed to probe target dataset")
	}
	if !ok {
		return ModePlain, nil
	}

	r.logger.Debug().Str("source", e.Source).Str("target", e.Target).Msg("both datasets are snapshottable")
	return ModeSnapshot, nil
}

// ForPolicy resolves the mode of a policy between two registered clusters.
func (r *Resolver) ForPolicy(ctx context.Context, p models.Policy, source, target models.Cluster, tdeKey string) (Mode, error) {
	return r.Resolve(ctx, Endpoints{
		Type:       p.Type,
		Source:     Qualify(source.FsEndpoint, p.SourceDataset),
		Target:     Qualify(target.FsEndpoint, p.TargetDataset),
		TDEEnabled: strings.EqualFold(p.Property(tdeKey, "false"), "true"),
	})
}

func (r *Resolver) isRemote(address string) bool {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" {
		return false
	}
	return !strings.EqualFold(u.Scheme, r.scheme)
}

// Qualify prefixes a dataset path with a filesystem endpoint unless the
// dataset already carries a scheme.
func Qualify(endpoint, dataset string) string {
	if strings.Contains(dataset, "://") || endpoint == "" {
		return dataset
	}
	return strings.TrimSuffix(endpoint, "/") + "/" + strings.TrimPrefix(dataset, "/")
}
