package engine

import (
	"bufio"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
)

// JobState is the MapReduce state reported by `mapred job -status`.
type JobState string

const (
	JobPrep      JobState = "PREP"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobKilled    JobState = "KILLED"
)

func (s JobState) Done() bool {
	return s == JobSucceeded || s == JobFailed || s == JobKilled
}

// JobStatus is the parsed output of `mapred job -status`.
type JobStatus struct {
	JobID       string
	State       JobState
	MapProgress float64
	Failure     string
	Counters    progress.Counters
}

// Report converts the status into the copy extractor input. The status
// output carries no timing, so the caller passes the submission time.
func (s JobStatus) Report(started time.Time, now time.Time) progress.JobReport {
	r := progress.JobReport{
		JobID:       s.JobID,
		Counters:    s.Counters,
		MapProgress: s.MapProgress,
		Complete:    s.State.Done(),
		Successful:  s.State == JobSucceeded,
		StartTime:   started,
	}
	launched := s.Counters.Value(progress.JobCounterGroup, progress.CounterLaunchedMaps)
	r.SucceededMaps = int64(float64(launched) * s.MapProgress)
	if r.Complete {
		r.FinishTime = now
	}
	return r
}

var jobIDPattern = regexp.MustCompile(`\bjob_\d+_\d+\b`)

// ParseJobID extracts the first MapReduce job id from tool output.
func ParseJobID(out string) (string, bool) {
	id := jobIDPattern.FindString(out)
	return id, id != ""
}

// Display names of counter groups and counters, as printed by the job
// client, mapped onto their canonical names.
var (
	counterGroupAliases = map[string]string{
		"Job Counters":    progress.JobCounterGroup,
		"DistCp Counters": progress.CopyCounterGroup,
	}
	counterAliases = map[string]string{
		"Launched map tasks": progress.CounterLaunchedMaps,
		"Failed map tasks":   progress.CounterFailedMaps,
		"Killed map tasks":   progress.CounterKilledMaps,
		"Bytes Copied":       progress.CounterBytesCopied,
		"Files Copied":       progress.CounterFilesCopied,
		"Directories Copied": progress.CounterDirsCopied,
	}
)

// ParseJobStatus reads the output of `mapred job -status <id>`.
func ParseJobStatus(out string) (JobStatus, error) {
	var st JobStatus
	var group string
	inCounters := false

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if inCounters && strings.HasPrefix(raw, "\t") {
			if strings.HasPrefix(raw, "\t\t") {
				name, value, ok := strings.Cut(line, "=")
				if !ok || group == "" {
					continue
				}
				n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
				if err != nil {
					continue
				}
				name = strings.TrimSpace(name)
				if alias, ok := counterAliases[name]; ok {
					name = alias
				}
				st.Counters[group][name] = n
				continue
			}
			group = line
			if alias, ok := counterGroupAliases[group]; ok {
				group = alias
			}
			if st.Counters[group] == nil {
				st.Counters[group] = make(map[string]int64)
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Job":
			st.JobID = value
		case "Job state":
			st.State = JobState(strings.ToUpper(value))
		case "map() completion":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return st, errors.Wrapf(err, "invalid map completion %q", value)
			}
			st.MapProgress = f
		case "reason for failure":
			st.Failure = value
		case "Counters":
			inCounters = true
			st.Counters = make(progress.Counters)
		}
	}
	if err := sc.Err(); err != nil {
		return st, err
	}
	if st.JobID == "" || st.State == "" {
		return st, errors.New("unrecognized job status output")
	}
	return st, nil
}

const lsTimeLayout = "2006-01-02 15:04"

// ParseSnapshotListing reads `hdfs dfs -ls <dir>/.snapshot`.
func ParseSnapshotListing(out string) ([]snapshot.Info, error) {
	var snaps []snapshot.Info
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 8 || strings.HasPrefix(fields[0], "Found") {
			continue
		}
		mod, err := time.ParseInLocation(lsTimeLayout, fields[5]+" "+fields[6], time.UTC)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid listing line %q", sc.Text())
		}
		snaps = append(snaps, snapshot.Info{
			Name:    path.Base(strings.Join(fields[7:], " ")),
			ModTime: mod,
		})
	}
	return snaps, sc.Err()
}

// ParseRows splits tsv2 output into rows of columns.
func ParseRows(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// SplitLines splits tool output into non-empty lines.
func SplitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
