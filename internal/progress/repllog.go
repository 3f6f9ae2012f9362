package progress

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ReplAction selects the marker vocabulary of a table replication log.
type ReplAction string

const (
	ActionExport ReplAction = "EXPORT"
	ActionImport ReplAction = "IMPORT"
)

const (
	markerStart     = "START"
	markerEnd       = "END"
	markerTableDump = "TABLE_DUMP"
	markerEventDump = "EVENT_DUMP"
	markerTableLoad = "TABLE_LOAD"
	markerEventLoad = "EVENT_LOAD"

	replTypeBootstrap = "BOOTSTRAP"
)

var (
	levelPrefix = regexp.MustCompile(`^(\w+)\s+:\s+(.*)$`)
	replMarker  = regexp.MustCompile(`REPL::(\w+):\s*(.*)$`)
)

type replPayload struct {
	DumpType           string `json:"dumpType"`
	LoadType           string `json:"loadType"`
	EstimatedNumTables int64  `json:"estimatedNumTables"`
	EstimatedNumEvents int64  `json:"estimatedNumEvents"`
	ActualNumTables    int64  `json:"actualNumTables"`
	ActualNumEvents    int64  `json:"actualNumEvents"`
	NumTables          int64  `json:"numTables"`
	NumEvents          int64  `json:"numEvents"`
}

func (p replPayload) bootstrap(action ReplAction) bool {
	if action == ActionExport {
		return strings.EqualFold(p.DumpType, replTypeBootstrap)
	}
	return strings.EqualFold(p.LoadType, replTypeBootstrap)
}

func (p replPayload) estimated(action ReplAction) int64 {
	boot := p.bootstrap(action)
	switch {
	case action == ActionExport && boot:
		return p.EstimatedNumTables
	case action == ActionExport:
		return p.EstimatedNumEvents
	case boot:
		return p.NumTables
	default:
		return p.NumEvents
	}
}

func (p replPayload) actual(action ReplAction) int64 {
	boot := p.bootstrap(action)
	switch {
	case action == ActionExport && boot:
		return p.ActualNumTables
	case action == ActionExport:
		return p.ActualNumEvents
	case boot:
		return p.NumTables
	default:
		return p.NumEvents
	}
}

func unitFor(p replPayload, action ReplAction) UnitKind {
	if p.bootstrap(action) {
		return UnitTable
	}
	return UnitEvents
}

type replLine struct {
	marker  string
	payload string
}

// splitReplLine strips the "LEVEL : " prefix and extracts the REPL marker.
func splitReplLine(line string) (replLine, bool) {
	m := levelPrefix.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return replLine{}, false
	}
	r := replMarker.FindStringSubmatch(m[2])
	if r == nil {
		return replLine{}, false
	}
	return replLine{marker: r[1], payload: r[2]}, true
}

func isUnitMarker(marker string, action ReplAction) bool {
	if action == ActionExport {
		return marker == markerTableDump || marker == markerEventDump
	}
	return marker == markerTableLoad || marker == markerEventLoad
}

// ParseReplLog turns the ordered log lines of one export or import attempt into
// a Progress. Only lines between the first START and the first END that follows
// it are counted. Without a START marker, the last line alone is inspected.
func ParseReplLog(lines []string, action ReplAction) (Progress, error) {
	var p Progress
	if len(lines) == 0 {
		return p, nil
	}

	window := lines[len(lines)-1:]
	for i, line := range lines {
		if l, ok := splitReplLine(line); ok && l.marker == markerStart {
			window = lines[i:]
			break
		}
	}

	for _, line := range window {
		l, ok := splitReplLine(line)
		if !ok {
			continue
		}
		switch {
		case l.marker == markerStart:
			payload, err := decodePayload(l.payload)
			if err != nil {
				return Progress{}, err
			}
			p.Total = payload.estimated(action)
			p.Unit = unitFor(payload, action)
		case l.marker == markerEnd:
			payload, err := decodePayload(l.payload)
			if err != nil {
				return Progress{}, err
			}
			if p.Total == 0 {
				p.Total = payload.actual(action)
				p.Unit = unitFor(payload, action)
			}
			p.Completed = p.Total
			return p, nil
		case isUnitMarker(l.marker, action):
			p.Completed++
		}
	}
	return p, nil
}

func decodePayload(raw string) (replPayload, error) {
	var payload replPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, errors.Wrapf(err, "invalid repl log payload %q", raw)
	}
	return payload, nil
}
