package jobbuilder

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
)

// ClusterLookup resolves a cluster record by name.
type ClusterLookup interface {
	GetCluster(ctx context.Context, name string) (models.Cluster, error)
}

type Builder struct {
	clusters ClusterLookup
}

func New(clusters ClusterLookup) *Builder {
	return &Builder{clusters: clusters}
}

// Identifier derives the stable job identifier of a policy.
func Identifier(name string, typ models.ReplicationType) string {
	return name + "-" + string(typ)
}

// Build translates a policy into the job stages of one run. FS policies
// yield a single copy stage; Hive policies yield an export and an import
// stage, in that order.
func (b *Builder) Build(ctx context.Context, p models.Policy) ([]models.JobDetails, error) {
	src, err := b.clusters.GetCluster(ctx, p.SourceCluster)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve source cluster %q", p.SourceCluster)
	}
	tgt, err := b.clusters.GetCluster(ctx, p.TargetCluster)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve target cluster %q", p.TargetCluster)
	}
	return BuildWithClusters(p, src, tgt)
}

// BuildWithClusters is Build for callers that already hold both cluster records.
func BuildWithClusters(p models.Policy, src, tgt models.Cluster) ([]models.JobDetails, error) {
	switch p.Type {
	case models.ReplicationTypeFS:
		props := FSProperties(p, src, tgt)
		if err := ValidateFS(props); err != nil {
			return nil, err
		}
		return []models.JobDetails{details(props)}, nil

	case models.ReplicationTypeHive:
		var jobs []models.JobDetails
		for _, action := range []string{ActionExport, ActionImport} {
			props := HiveProperties(p, src, tgt, action)
			if err := ValidateHive(props); err != nil {
				return nil, err
			}
			jobs = append(jobs, details(props))
		}
		return jobs, nil

	default:
		return nil, &InvalidPropertyError{Key: KeyType, Value: string(p.Type), Err: errors.New("unsupported replication type")}
	}
}

func details(props map[string]string) models.JobDetails {
	typ := models.ReplicationType(props[KeyType])
	return models.JobDetails{
		Identifier: Identifier(props[KeyName], typ),
		Name:       props[KeyName],
		Type:       typ,
		Properties: props,
	}
}

// FSProperties flattens an FS policy into job properties and fills defaults.
func FSProperties(p models.Policy, src, tgt models.Cluster) map[string]string {
	props := commonProperties(p)
	set(props, KeySourceNN, src.FsEndpoint)
	set(props, KeyTargetNN, tgt.FsEndpoint)
	set(props, KeySourcePath, p.SourceDataset)
	set(props, KeyTargetPath, p.TargetDataset)

	set(props, KeySourceRetentionAge, p.Property(KeySourceRetentionAge, DefaultRetentionAge))
	set(props, KeySourceRetentionCount, p.Property(KeySourceRetentionCount, DefaultRetentionCount))
	set(props, KeyTargetRetentionAge, p.Property(KeyTargetRetentionAge, DefaultRetentionAge))
	set(props, KeyTargetRetentionCount, p.Property(KeyTargetRetentionCount, DefaultRetentionCount))

	copyPrefixed(props, p.CustomProperties, DistcpOptionPrefix)
	for _, c := range []models.Cluster{src, tgt} {
		for k, v := range c.HAConfigs() {
			set(props, k, v)
		}
	}
	return props
}

// HiveProperties flattens a Hive policy into the properties of one stage.
func HiveProperties(p models.Policy, src, tgt models.Cluster, action string) map[string]string {
	props := commonProperties(p)
	set(props, KeyActionType, action)
	set(props, KeySourceHS2, src.HsEndpoint)
	set(props, KeyTargetHS2, tgt.HsEndpoint)
	set(props, KeySourceNN, src.FsEndpoint)
	set(props, KeyTargetNN, tgt.FsEndpoint)
	set(props, KeySourcePath, p.SourceDataset)
	target := p.TargetDataset
	if target == "" {
		target = p.SourceDataset
	}
	set(props, KeyTargetPath, target)
	set(props, KeyMaxEvents, p.Property(KeyMaxEvents, DefaultMaxEvents))
	set(props, KeySourceHSPrn, src.CustomProperties[hiveServerPrincipal])
	set(props, KeyTargetHSPrn, tgt.CustomProperties[hiveServerPrincipal])

	copyPrefixed(props, p.CustomProperties, DistcpOptionPrefix)
	copyPrefixed(props, p.CustomProperties, HiveReplConfigPrefix)
	return props
}

func commonProperties(p models.Policy) map[string]string {
	retry := p.Retry.WithDefaults()
	props := make(map[string]string)
	set(props, KeyName, p.Name)
	set(props, KeyType, string(p.Type))
	set(props, KeySourceName, p.SourceCluster)
	set(props, KeyTargetName, p.TargetCluster)
	if p.FrequencyInSec > 0 {
		set(props, KeyFrequency, strconv.FormatInt(p.FrequencyInSec, 10))
	}
	if p.StartTime != nil {
		set(props, KeyStartTime, p.StartTime.UTC().Format(time.RFC3339))
	}
	if p.EndTime != nil {
		set(props, KeyEndTime, p.EndTime.UTC().Format(time.RFC3339))
	}
	set(props, KeyRetryCount, strconv.Itoa(retry.Attempts))
	set(props, KeyRetryDelay, strconv.FormatInt(retry.Delay, 10))
	set(props, KeyDistcpMaps, p.Property(KeyDistcpMaps, DefaultDistcpMaxMaps))
	set(props, KeyDistcpBW, p.Property(KeyDistcpBW, DefaultDistcpBandwidth))
	set(props, KeyQueueName, p.Property(KeyQueueName, DefaultQueueName))
	set(props, KeyTDEEnabled, p.Property(KeyTDEEnabled, "false"))
	return props
}

// set skips blank values so that an unset field reads as missing.
func set(props map[string]string, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	props[key] = strings.TrimSpace(value)
}

func copyPrefixed(dst, src map[string]string, prefix string) {
	for k, v := range src {
		if strings.HasPrefix(k, prefix) {
			set(dst, k, v)
		}
	}
}

// ValidateFS checks required keys, numeric values and retention expressions.
func ValidateFS(props map[string]string) error {
	if err := validate(props, requiredFS); err != nil {
		return err
	}
	for _, key := range []string{KeySourceRetentionAge, KeyTargetRetentionAge} {
		v, ok := props[key]
		if !ok {
			continue
		}
		if _, err := snapshot.ParseAge(v); err != nil {
			return &InvalidPropertyError{Key: key, Value: v, Err: err}
		}
	}
	return nil
}

var hiveIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateHive checks required keys, numeric values and that both database
// names are plain identifiers.
func ValidateHive(props map[string]string) error {
	if err := validate(props, requiredHive); err != nil {
		return err
	}
	for _, key := range []string{KeySourcePath, KeyTargetPath} {
		v, ok := props[key]
		if ok && !hiveIdentifier.MatchString(v) {
			return &InvalidPropertyError{Key: key, Value: v, Err: errors.New("expected a database name")}
		}
	}
	if action, ok := props[KeyActionType]; ok && action != ActionExport && action != ActionImport {
		return &InvalidPropertyError{Key: KeyActionType, Value: action, Err: errors.New("expected EXPORT or IMPORT")}
	}
	return nil
}

func validate(props map[string]string, required []string) error {
	for _, key := range required {
		if _, ok := props[key]; !ok {
			return &MissingPropertyError{Key: key}
		}
	}
	for _, key := range numericKeys {
		v, ok := props[key]
		if !ok {
			continue
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return &InvalidPropertyError{Key: key, Value: v, Err: err}
		}
	}
	return nil
}
