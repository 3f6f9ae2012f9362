package hive

import (
	"fmt"
	"sort"
	"strings"
)

// DumpCommand builds REPL DUMP. FROM and TO are added only for positive
// bounds; LIMIT only applies to an incremental dump.
func DumpCommand(db string, from, to, limit int64) string {
	var b strings.Builder
	b.WriteString("REPL DUMP ")
	b.WriteString(db)
	if from > 0 {
		fmt.Fprintf(&b, " FROM %d", from)
	}
	if to > 0 {
		fmt.Fprintf(&b, " TO %d", to)
	}
	if from > 0 && limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

// LoadCommand builds REPL LOAD with optional WITH configuration, rendered
// in key order.
func LoadCommand(db, dumpDir string, config map[string]string) string {
	cmd := fmt.Sprintf("REPL LOAD %s FROM '%s'", db, quote(dumpDir))
	if len(config) == 0 {
		return cmd
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("'%s'='%s'", quote(k), quote(config[k])))
	}
	return cmd + " WITH (" + strings.Join(pairs, ",") + ")"
}

func StatusCommand(db string) string {
	return "REPL STATUS " + db
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
