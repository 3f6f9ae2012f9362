package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	cmds    [][]string
	copied  map[string]string
	respond func(cmd []string) *ExecResult
}

func (f *fakeRunner) Exec(_ context.Context, _ string, cmd []string, _ ...ExecOpt) (*ExecResult, error) {
	f.cmds = append(f.cmds, cmd)
	if f.respond == nil {
		return &ExecResult{}, nil
	}
	return f.respond(cmd), nil
}

func (f *fakeRunner) CopyTo(_ context.Context, _ string, dst string, content []byte, name string) error {
	if f.copied == nil {
		f.copied = make(map[string]string)
	}
	f.copied[dst+"/"+name] = string(content)
	return nil
}

const statusOutput = `
Job: job_1717243200000_0042
Job File: hdfs://nn1:8020/user/hdfs/.staging/job_1717243200000_0042/job.xml
Job Tracking URL : http://rm:8088/proxy/application_1717243200000_0042/
Uber job : false
Number of maps: 4
Number of reduces: 0
map() completion: 0.5
reduce() completion: 0.0
Job state: RUNNING
retired: false
reason for failure: 
Counters: 12
	Job Counters 
		Launched map tasks=4
		Killed map tasks=1
	DistCp Counters
		Bytes Copied=2048
		Files Copied=3
		DIR_COPY=2
`

func TestParseJobStatus(t *testing.T) {
	st, err := ParseJobStatus(statusOutput)
	require.NoError(t, err)
	assert.Equal(t, "job_1717243200000_0042", st.JobID)
	assert.Equal(t, JobRunning, st.State)
	assert.InDelta(t, 0.5, st.MapProgress, 1e-9)
	assert.Equal(t, int64(4), st.Counters.Value(progress.JobCounterGroup, progress.CounterLaunchedMaps))
	assert.Equal(t, int64(1), st.Counters.Value(progress.JobCounterGroup, progress.CounterKilledMaps))
	assert.Equal(t, int64(2048), st.Counters.Value(progress.CopyCounterGroup, progress.CounterBytesCopied))
	assert.Equal(t, int64(3), st.Counters.Value(progress.CopyCounterGroup, progress.CounterFilesCopied))
	assert.Equal(t, int64(2), st.Counters.Value(progress.CopyCounterGroup, progress.CounterDirsCopied))

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := progress.FromCounters(st.Report(start, start.Add(time.Minute)), start.Add(time.Minute))
	assert.Equal(t, int64(4), p.Total)
	assert.Equal(t, int64(2), p.Completed)
	assert.Equal(t, int64(50), p.Percent)
	assert.Equal(t, time.Minute, p.TimeTaken)
}

func TestParseJobStatusWithoutCounters(t *testing.T) {
	st, err := ParseJobStatus("Job: job_1_0001\nJob state: PREP\nmap() completion: 0.0\n")
	require.NoError(t, err)
	assert.Equal(t, JobPrep, st.State)
	assert.False(t, st.State.Done())

	p := progress.FromCounters(st.Report(time.Time{}, time.Now()), time.Now())
	assert.Equal(t, progress.Progress{Unit: progress.UnitMapTasks}, p)
}

func TestParseJobStatusRejectsGarbage(t *testing.T) {
	_, err := ParseJobStatus("Exception in thread main")
	assert.Error(t, err)
}

func TestParseJobID(t *testing.T) {
	id, ok := ParseJobID("INFO mapreduce.Job: Running job: job_1717243200000_0007\n")
	assert.True(t, ok)
	assert.Equal(t, "job_1717243200000_0007", id)

	_, ok = ParseJobID("nothing here")
	assert.False(t, ok)
}

func TestParseSnapshotListing(t *testing.T) {
	out := `Found 2 items
drwxr-xr-x   - hdfs supergroup          0 2024-06-01 10:15 /data/in/.snapshot/replication-snapshot-daily-20240601101500000
drwxr-xr-x   - hdfs supergroup          0 2024-06-01 11:15 /data/in/.snapshot/manual
`
	snaps, err := ParseSnapshotListing(out)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "replication-snapshot-daily-20240601101500000", snaps[0].Name)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC), snaps[0].ModTime)
	assert.Equal(t, "manual", snaps[1].Name)
}

func TestDistcpArgs(t *testing.T) {
	tests := []struct {
		name string
		req  DistcpRequest
		want string
	}{
		{
			name: "plain",
			req: DistcpRequest{
				Source: "hdfs://nn1/a", Target: "hdfs://nn2/a",
				Maps: 2, Bandwidth: 100, Queue: "etl",
				Update: true, Delete: true, Preserve: "bp",
			},
			want: "distcp -Dmapreduce.job.queuename=etl -async -m 2 -bandwidth 100 -update -delete -pbp hdfs://nn1/a hdfs://nn2/a",
		},
		{
			name: "snapshot diff drops delete",
			req: DistcpRequest{
				Source: "hdfs://nn1/a", Target: "hdfs://nn2/a",
				Delete: true, DiffFrom: "s1", DiffTo: "s2",
				Config: map[string]string{"dfs.nameservices": "ns1"},
			},
			want: "distcp -Ddfs.nameservices=ns1 -async -update -diff s1 s2 hdfs://nn1/a hdfs://nn2/a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, strings.Join(tt.req.Args(), " "))
		})
	}
}

func TestHadoopExists(t *testing.T) {
	r := &fakeRunner{respond: func(cmd []string) *ExecResult {
		switch cmd[len(cmd)-1] {
		case "/yes":
			return &ExecResult{}
		case "/no":
			return &ExecResult{ExitCode: 1}
		default:
			return &ExecResult{ExitCode: 255, Stderr: "connection refused"}
		}
	}}
	h := NewHadoop(r, HadoopConfig{Container: "hadoop-client"}, zerolog.Nop())
	ctx := context.Background()

	ok, err := h.Exists(ctx, "/yes")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Exists(ctx, "/no")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Exists(ctx, "/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hdfs failed (255): connection refused")
}

func TestHadoopDistcpCapturesJobID(t *testing.T) {
	r := &fakeRunner{respond: func(cmd []string) *ExecResult {
		return &ExecResult{Stderr: "INFO tools.DistCp: Job ID: job_1717243200000_0009\n"}
	}}
	h := NewHadoop(r, HadoopConfig{Container: "hadoop-client"}, zerolog.Nop())

	id, err := h.Distcp(context.Background(), DistcpRequest{Source: "/a", Target: "/b"})
	require.NoError(t, err)
	assert.Equal(t, "job_1717243200000_0009", id)
	assert.Equal(t, "hadoop", r.cmds[0][0])
}

func TestJDBCURL(t *testing.T) {
	assert.Equal(t, "jdbc:hive2://hs1:10000/default", JDBCURL("hive2://hs1:10000", ""))
	assert.Equal(t, "jdbc:hive2://hs1:10000/db;principal=hive/_HOST@EX", JDBCURL("jdbc:hive2://hs1:10000/db", "hive/_HOST@EX"))
}

func TestHiveSession(t *testing.T) {
	r := &fakeRunner{respond: func(cmd []string) *ExecResult {
		return &ExecResult{Stdout: "/tmp/dump/1\t42\n", Stderr: "INFO  : REPL::START: {}\n"}
	}}
	hs := NewHiveServer(r, HiveConfig{Container: "hive-client"}, zerolog.Nop())
	ctx := context.Background()

	s, err := hs.Connect(ctx, "hive2://hs1:10000", "")
	require.NoError(t, err)

	res, err := s.Query(ctx, "REPL DUMP sales")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"/tmp/dump/1", "42"}}, res.Rows)
	assert.Equal(t, []string{"INFO  : REPL::START: {}"}, res.Log)

	_, err = s.Script(ctx, []string{"DROP TABLE a", "DROP TABLE b;"})
	require.NoError(t, err)
	require.Len(t, r.copied, 1)
	for _, content := range r.copied {
		assert.Equal(t, "DROP TABLE a;\nDROP TABLE b;\n", content)
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
