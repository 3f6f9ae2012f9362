package fs

import (
	"strconv"
	"strings"

	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/resolver"
)

type retention struct {
	age   string
	count int
}

type copyConfig struct {
	policy     string
	source     string
	target     string
	maps       int
	bandwidth  int
	queue      string
	tde        bool
	sourceKeep retention
	targetKeep retention
	hadoopConf map[string]string

	overwrite      bool
	skipCRC        bool
	removeDeleted  bool
	ignoreFailures bool
	preserve       string
}

// preserveFlags maps distcp option properties onto -p attribute letters.
var preserveFlags = []struct {
	key    string
	letter string
}{
	{jobbuilder.DistcpPreserveBlockSize, "b"},
	{jobbuilder.DistcpPreserveRepl, "r"},
	{jobbuilder.DistcpPreserveUser, "u"},
	{jobbuilder.DistcpPreserveGroup, "g"},
	{jobbuilder.DistcpPreservePerm, "p"},
	{jobbuilder.DistcpPreserveChecksum, "c"},
	{jobbuilder.DistcpPreserveACL, "a"},
	{jobbuilder.DistcpPreserveXAttr, "x"},
	{jobbuilder.DistcpPreserveTimes, "t"},
}

func configOf(d models.JobDetails) (copyConfig, error) {
	c := copyConfig{
		policy:     d.Name,
		source:     resolver.Qualify(d.Property(jobbuilder.KeySourceNN), d.Property(jobbuilder.KeySourcePath)),
		queue:      d.Property(jobbuilder.KeyQueueName),
		tde:        flag(d, jobbuilder.KeyTDEEnabled),
		hadoopConf: make(map[string]string),

		overwrite:      flag(d, jobbuilder.DistcpOverwrite),
		skipCRC:        flag(d, jobbuilder.DistcpSkipChecksum),
		removeDeleted:  flag(d, jobbuilder.DistcpRemoveDeleted),
		ignoreFailures: flag(d, jobbuilder.DistcpIgnoreErrors),
	}

	target := d.Property(jobbuilder.KeyTargetPath)
	if target == "" {
		target = d.Property(jobbuilder.KeySourcePath)
	}
	c.target = resolver.Qualify(d.Property(jobbuilder.KeyTargetNN), target)

	var err error
	if c.maps, err = intProperty(d, jobbuilder.KeyDistcpMaps, jobbuilder.DefaultDistcpMaxMaps); err != nil {
		return c, err
	}
	if c.bandwidth, err = intProperty(d, jobbuilder.KeyDistcpBW, jobbuilder.DefaultDistcpBandwidth); err != nil {
		return c, err
	}
	if c.sourceKeep, err = retentionOf(d, jobbuilder.KeySourceRetentionAge, jobbuilder.KeySourceRetentionCount); err != nil {
		return c, err
	}
	if c.targetKeep, err = retentionOf(d, jobbuilder.KeyTargetRetentionAge, jobbuilder.KeyTargetRetentionCount); err != nil {
		return c, err
	}

	for _, p := range preserveFlags {
		if flag(d, p.key) {
			c.preserve += p.letter
		}
	}
	for k, v := range d.Properties {
		if strings.HasPrefix(k, "dfs.") || strings.HasPrefix(k, "ha.") {
			c.hadoopConf[k] = v
		}
	}
	return c, nil
}

func flag(d models.JobDetails, key string) bool {
	v, _ := strconv.ParseBool(d.Property(key))
	return v
}

func intProperty(d models.JobDetails, key, def string) (int, error) {
	v := d.Property(key)
	if v == "" {
		v = def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &jobbuilder.InvalidPropertyError{Key: key, Value: v, Err: err}
	}
	return n, nil
}

func retentionOf(d models.JobDetails, ageKey, countKey string) (retention, error) {
	r := retention{age: d.Property(ageKey)}
	if r.age == "" {
		r.age = jobbuilder.DefaultRetentionAge
	}
	n, err := intProperty(d, countKey, jobbuilder.DefaultRetentionCount)
	r.count = n
	return r, err
}
