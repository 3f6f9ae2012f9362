package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplLog(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		action    ReplAction
		total     int64
		completed int64
		unit      UnitKind
	}{
		{
			name:   "empty input",
			action: ActionExport,
		},
		{
			name: "bootstrap export finished",
			lines: []string{
				`INFO : REPL::START: {"dumpType":"BOOTSTRAP","estimatedNumTables":5}`,
				`INFO : REPL::TABLE_DUMP: {"tableName":"t1"}`,
				`INFO : REPL::TABLE_DUMP: {"tableName":"t2"}`,
				`INFO : REPL::END: {"dumpType":"BOOTSTRAP","actualNumTables":5}`,
			},
			action:    ActionExport,
			total:     5,
			completed: 5,
			unit:      UnitTable,
		},
		{
			name: "incremental export in flight",
			lines: []string{
				`INFO : Compiling command`,
				`INFO : REPL::START: {"dumpType":"INCREMENTAL","estimatedNumEvents":40}`,
				`INFO : REPL::EVENT_DUMP: {"eventId":"101"}`,
				`DEBUG : something unrelated`,
				`INFO : REPL::EVENT_DUMP: {"eventId":"102"}`,
				`INFO : REPL::EVENT_DUMP: {"eventId":"103"}`,
			},
			action:    ActionExport,
			total:     40,
			completed: 3,
			unit:      UnitEvents,
		},
		{
			name: "lines after end are ignored",
			lines: []string{
				`INFO : REPL::START: {"loadType":"INCREMENTAL","numEvents":2}`,
				`INFO : REPL::EVENT_LOAD: {}`,
				`INFO : REPL::END: {"loadType":"INCREMENTAL","numEvents":2}`,
				`INFO : REPL::EVENT_LOAD: {}`,
				`INFO : REPL::EVENT_LOAD: {}`,
			},
			action:    ActionImport,
			total:     2,
			completed: 2,
			unit:      UnitEvents,
		},
		{
			name: "import ignores dump markers",
			lines: []string{
				`INFO : REPL::START: {"loadType":"BOOTSTRAP","numTables":3}`,
				`INFO : REPL::TABLE_DUMP: {}`,
				`INFO : REPL::TABLE_LOAD: {}`,
			},
			action:    ActionImport,
			total:     3,
			completed: 1,
			unit:      UnitTable,
		},
		{
			name: "no start marker inspects last line only",
			lines: []string{
				`INFO : REPL::TABLE_DUMP: {}`,
				`INFO : REPL::TABLE_DUMP: {}`,
				`INFO : REPL::END: {"dumpType":"BOOTSTRAP","actualNumTables":7}`,
			},
			action:    ActionExport,
			total:     7,
			completed: 7,
			unit:      UnitTable,
		},
		{
			name:   "unknown lines are skipped",
			lines:  []string{"no level prefix here", "WARN : plain message"},
			action: ActionExport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseReplLog(tt.lines, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.completed, p.Completed)
			assert.Equal(t, tt.unit, p.Unit)
		})
	}
}

func TestParseReplLogBadPayload(t *testing.T) {
	_, err := ParseReplLog([]string{`INFO : REPL::START: {not json`}, ActionExport)
	assert.Error(t, err)
}
