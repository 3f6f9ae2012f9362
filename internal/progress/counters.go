package progress

import "time"

// Counter groups reported by the distributed copy tool.
const (
	JobCounterGroup  = "org.apache.hadoop.mapreduce.JobCounter"
	CopyCounterGroup = "org.apache.hadoop.tools.mapred.CopyMapper$Counter"
)

// Counter names within the groups above.
const (
	CounterLaunchedMaps = "TOTAL_LAUNCHED_MAPS"
	CounterFailedMaps   = "NUM_FAILED_MAPS"
	CounterKilledMaps   = "NUM_KILLED_MAPS"
	CounterBytesCopied  = "BYTESCOPIED"
	CounterFilesCopied  = "COPY"
	CounterDirsCopied   = "DIR_COPY"
)

// Counters is a group -> name -> value view of a copy job's counters.
type Counters map[string]map[string]int64

// Value returns the named counter or zero when the group or counter is absent.
func (c Counters) Value(group, name string) int64 {
	if c == nil {
		return 0
	}
	return c[group][name]
}

// JobReport is what the copy tool reports about one running or finished job.
type JobReport struct {
	JobID         string
	Counters      Counters
	MapProgress   float64 // 0..1
	Complete      bool
	Successful    bool
	SucceededMaps int64
	StartTime     time.Time
	FinishTime    time.Time
}

// FromCounters derives a Progress from a copy job report. A freshly submitted
// job without counters yields a zero record.
func FromCounters(r JobReport, now time.Time) Progress {
	p := Progress{
		Total:       r.Counters.Value(JobCounterGroup, CounterLaunchedMaps),
		Failed:      r.Counters.Value(JobCounterGroup, CounterFailedMaps),
		Killed:      r.Counters.Value(JobCounterGroup, CounterKilledMaps),
		BytesCopied: r.Counters.Value(CopyCounterGroup, CounterBytesCopied),
		FilesCopied: r.Counters.Value(CopyCounterGroup, CounterFilesCopied),
		DirsCopied:  r.Counters.Value(CopyCounterGroup, CounterDirsCopied),
		Unit:        UnitMapTasks,
	}

	if r.Complete {
		p.Completed = p.Total
		p.Percent = 100
	} else {
		p.Completed = r.SucceededMaps
		p.Percent = int64(r.MapProgress * 100)
	}

	switch {
	case r.StartTime.IsZero():
	case r.Complete && !r.FinishTime.IsZero():
		p.TimeTaken = r.FinishTime.Sub(r.StartTime)
	default:
		p.TimeTaken = now.Sub(r.StartTime)
	}
	if p.TimeTaken < 0 {
		p.TimeTaken = 0
	}
	return p
}
