package hive

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/engine"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	endpoint string
	stmts    []string
	scripts  [][]string
	closed   int
	answer   func(stmt string) (*engine.QueryResult, error)
}

func (s *fakeSession) Query(_ context.Context, stmt string) (*engine.QueryResult, error) {
	s.stmts = append(s.stmts, stmt)
	if s.answer == nil {
		return &engine.QueryResult{}, nil
	}
	return s.answer(stmt)
}

func (s *fakeSession) Script(_ context.Context, stmts []string) (*engine.QueryResult, error) {
	s.scripts = append(s.scripts, stmts)
	return &engine.QueryResult{}, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeConnector struct {
	sessions map[string]*fakeSession
	fail     map[string]error
}

func (c *fakeConnector) Connect(_ context.Context, endpoint, _ string) (Session, error) {
	if err := c.fail[endpoint]; err != nil {
		return nil, err
	}
	return c.sessions[endpoint], nil
}

func newConnector(source, target *fakeSession) *fakeConnector {
	return &fakeConnector{sessions: map[string]*fakeSession{
		"hive2://src:10000": source,
		"hive2://tgt:10000": target,
	}}
}

func hiveDetails(action, db string) models.JobDetails {
	return models.JobDetails{
		Identifier: "sales-HIVE",
		Name:       "sales",
		Type:       models.ReplicationTypeHive,
		Properties: map[string]string{
			jobbuilder.KeyActionType: action,
			jobbuilder.KeySourcePath: db,
			jobbuilder.KeyTargetPath: db,
			jobbuilder.KeySourceHS2:  "hive2://src:10000",
			jobbuilder.KeyTargetHS2:  "hive2://tgt:10000",
			jobbuilder.KeySourceNN:   "hdfs://nn1:8020",
			jobbuilder.KeyMaxEvents:  "50",
			"hive.repl.replica.functions.root.dir": "/user/hive/repl/functions",
		},
	}
}

func statusAnswer(v string) func(string) (*engine.QueryResult, error) {
	return func(stmt string) (*engine.QueryResult, error) {
		if strings.HasPrefix(stmt, "REPL STATUS") {
			if v == "" {
				return &engine.QueryResult{}, nil
			}
			return &engine.QueryResult{Rows: [][]string{{v}}}, nil
		}
		return &engine.QueryResult{}, nil
	}
}

func dumpAnswer(dir, id string) func(string) (*engine.QueryResult, error) {
	return func(stmt string) (*engine.QueryResult, error) {
		return &engine.QueryResult{
			Rows: [][]string{{dir, id}},
			Log: []string{
				`INFO  : REPL::START: {"dumpType":"INCREMENTAL","estimatedNumEvents":2}`,
				`INFO  : REPL::EVENT_DUMP: {"eventId":"11"}`,
				`INFO  : REPL::EVENT_DUMP: {"eventId":"12"}`,
				`INFO  : REPL::END: {"dumpType":"INCREMENTAL","actualNumEvents":2}`,
			},
		}, nil
	}
}

func newJobContext() *job.Context {
	return job.NewContext("sales@1", job.State{}, zerolog.Nop())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"bootstrap dump", DumpCommand("sales", -1, 0, 100), "REPL DUMP sales"},
		{"zero from omits limit", DumpCommand("sales", 0, 0, 100), "REPL DUMP sales"},
		{"incremental dump", DumpCommand("sales", 10, 0, 100), "REPL DUMP sales FROM 10 LIMIT 100"},
		{"bounded dump", DumpCommand("sales", 10, 20, 0), "REPL DUMP sales FROM 10 TO 20"},
		{"plain load", LoadCommand("sales", "hdfs://nn1/dump", nil), "REPL LOAD sales FROM 'hdfs://nn1/dump'"},
		{
			"load with config",
			LoadCommand("sales", "/d", map[string]string{"hive.repl.b": "2", "hive.repl.a": "1"}),
			"REPL LOAD sales FROM '/d' WITH ('hive.repl.a'='1','hive.repl.b'='2')",
		},
		{"status", StatusCommand("sales"), "REPL STATUS sales"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestExportPublishesDumpDirectory(t *testing.T) {
	source := &fakeSession{answer: dumpAnswer("/tmp/dump/7", "12")}
	target := &fakeSession{answer: statusAnswer("10")}
	j, err := NewExportJob(hiveDetails(jobbuilder.ActionExport, "sales"), newConnector(source, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	var reported progress.Progress
	jc.OnProgress(func(p progress.Progress) { reported = p })

	d, err := job.Run(context.Background(), j, jc, job.ModePerform)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, d.Status)
	assert.Equal(t, "hdfs://nn1:8020/tmp/dump/7", jc.DumpDirectory())
	assert.False(t, jc.Bootstrap())
	assert.Equal(t, []string{"REPL DUMP sales FROM 10 LIMIT 50"}, source.stmts)
	assert.Equal(t, int64(2), reported.Completed)
	assert.Equal(t, progress.UnitEvents, reported.Unit)
	assert.Equal(t, 1, source.closed)
	assert.Equal(t, 1, target.closed)
}

func TestExportWithoutWatermarkIsBootstrap(t *testing.T) {
	for _, status := range []string{"", "NULL", "0"} {
		t.Run("status="+status, func(t *testing.T) {
			source := &fakeSession{answer: dumpAnswer("/tmp/dump/1", "40")}
			target := &fakeSession{answer: statusAnswer(status)}
			j, err := NewExportJob(hiveDetails(jobbuilder.ActionExport, "sales"), newConnector(source, target), zerolog.Nop())
			require.NoError(t, err)

			jc := newJobContext()
			_, err = job.Run(context.Background(), j, jc, job.ModePerform)
			require.NoError(t, err)
			assert.True(t, jc.Bootstrap())
			assert.Equal(t, []string{"REPL DUMP sales"}, source.stmts)
		})
	}
}

func TestExportIgnoredWhenNothingNew(t *testing.T) {
	source := &fakeSession{answer: dumpAnswer("/tmp/dump/8", "12")}
	target := &fakeSession{answer: statusAnswer("12")}
	j, err := NewExportJob(hiveDetails(jobbuilder.ActionExport, "sales"), newConnector(source, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	d, err := job.Run(context.Background(), j, jc, job.ModePerform)
	require.NoError(t, err)
	assert.Equal(t, job.StatusIgnored, d.Status)
	assert.Equal(t, MsgNothingToReplicate, d.Message)
	assert.Empty(t, jc.DumpDirectory())
}

func TestExportInitFailureClosesOpenedSessions(t *testing.T) {
	source := &fakeSession{}
	conn := newConnector(source, nil)
	conn.fail = map[string]error{"hive2://tgt:10000": errors.New("connection refused")}
	j, err := NewExportJob(hiveDetails(jobbuilder.ActionExport, "sales"), conn, zerolog.Nop())
	require.NoError(t, err)

	d, err := job.Run(context.Background(), j, newJobContext(), job.ModePerform)
	require.Error(t, err)
	assert.Equal(t, job.StatusFailed, d.Status)
	assert.Contains(t, d.Message, "connection refused")
	assert.Equal(t, 1, source.closed)
}

func TestExportInterrupted(t *testing.T) {
	source := &fakeSession{}
	target := &fakeSession{}
	ctx, cancel := context.WithCancel(context.Background())
	target.answer = func(string) (*engine.QueryResult, error) {
		cancel()
		return &engine.QueryResult{Rows: [][]string{{"3"}}}, nil
	}
	j, err := NewExportJob(hiveDetails(jobbuilder.ActionExport, "sales"), newConnector(source, target), zerolog.Nop())
	require.NoError(t, err)

	d, err := job.Run(ctx, j, newJobContext(), job.ModePerform)
	require.ErrorIs(t, err, job.ErrInterrupted)
	assert.Equal(t, job.StatusKilled, d.Status)
	assert.Empty(t, source.stmts)
}

func TestImportLoadsDump(t *testing.T) {
	target := &fakeSession{}
	j, err := NewImportJob(hiveDetails(jobbuilder.ActionImport, "sales"), newConnector(nil, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	jc.SetDumpDirectory("hdfs://nn1:8020/tmp/dump/7")
	_, err = job.Run(context.Background(), j, jc, job.ModePerform)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"REPL LOAD sales FROM 'hdfs://nn1:8020/tmp/dump/7' WITH ('hive.repl.replica.functions.root.dir'='/user/hive/repl/functions')",
	}, target.stmts)
}

func TestImportWithoutDumpFails(t *testing.T) {
	target := &fakeSession{}
	j, err := NewImportJob(hiveDetails(jobbuilder.ActionImport, "sales"), newConnector(nil, target), zerolog.Nop())
	require.NoError(t, err)

	d, err := job.Run(context.Background(), j, newJobContext(), job.ModePerform)
	require.Error(t, err)
	assert.Equal(t, job.StatusFailed, d.Status)
	assert.Empty(t, target.stmts)
}

func TestImportRecoverDropsBootstrappedDatabase(t *testing.T) {
	target := &fakeSession{}
	j, err := NewImportJob(hiveDetails(jobbuilder.ActionImport, "sales"), newConnector(nil, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	jc.SetDumpDirectory("/d")
	jc.SetBootstrap(true)
	_, err = job.Run(context.Background(), j, jc, job.ModeRecover)
	require.NoError(t, err)
	require.Len(t, target.stmts, 2)
	assert.Equal(t, "DROP DATABASE IF EXISTS sales CASCADE", target.stmts[0])
	assert.True(t, strings.HasPrefix(target.stmts[1], "REPL LOAD sales FROM '/d'"))
}

func TestImportRecoverEmptiesDefaultDatabase(t *testing.T) {
	target := &fakeSession{answer: func(stmt string) (*engine.QueryResult, error) {
		switch {
		case strings.HasPrefix(stmt, "SHOW TABLES"):
			return &engine.QueryResult{Rows: [][]string{{"t1"}, {"t2"}}}, nil
		case strings.HasPrefix(stmt, "SHOW FUNCTIONS"):
			return &engine.QueryResult{Rows: [][]string{{"default.f1"}}}, nil
		}
		return &engine.QueryResult{}, nil
	}}
	j, err := NewImportJob(hiveDetails(jobbuilder.ActionImport, "default"), newConnector(nil, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	jc.SetDumpDirectory("/d")
	jc.SetBootstrap(true)
	_, err = job.Run(context.Background(), j, jc, job.ModeRecover)
	require.NoError(t, err)
	require.Len(t, target.scripts, 1)
	assert.Equal(t, []string{
		"DROP TABLE IF EXISTS default.t1",
		"DROP TABLE IF EXISTS default.t2",
		"DROP FUNCTION IF EXISTS default.f1",
	}, target.scripts[0])
}

func TestImportRecoverIncrementalReplays(t *testing.T) {
	target := &fakeSession{}
	j, err := NewImportJob(hiveDetails(jobbuilder.ActionImport, "sales"), newConnector(nil, target), zerolog.Nop())
	require.NoError(t, err)

	jc := newJobContext()
	jc.SetDumpDirectory("/d")
	_, err = job.Run(context.Background(), j, jc, job.ModeRecover)
	require.NoError(t, err)
	require.Len(t, target.stmts, 1)
	assert.True(t, strings.HasPrefix(target.stmts[0], "REPL LOAD"))
}

func TestRegister(t *testing.T) {
	f := job.NewFactory(zerolog.Nop())
	Register(f, newConnector(&fakeSession{}, &fakeSession{}))

	j, err := f.New(hiveDetails(jobbuilder.ActionExport, "sales"))
	require.NoError(t, err)
	assert.IsType(t, &ExportJob{}, j)

	j, err = f.New(hiveDetails(jobbuilder.ActionImport, "sales"))
	require.NoError(t, err)
	assert.IsType(t, &ImportJob{}, j)
}
