package progress

import (
	"fmt"
	"strings"
	"time"
)

// UnitKind names what the Total and Completed fields of a Progress count.
type UnitKind int

const (
	UnitMapTasks UnitKind = iota
	UnitTable
	UnitEvents
)

var unitNames = [...]string{"MAPTASKS", "TABLE", "EVENTS"}

func (u UnitKind) String() string {
	if u < 0 || int(u) >= len(unitNames) {
		return fmt.Sprintf("UnitKind(%d)", int(u))
	}
	return unitNames[u]
}

// ParseUnitKind is the inverse of UnitKind.String. Matching is case-insensitive.
func ParseUnitKind(s string) (UnitKind, error) {
	for i, name := range unitNames {
		if strings.EqualFold(name, s) {
			return UnitKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown progress unit %q", s)
}

func (u UnitKind) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *UnitKind) UnmarshalText(b []byte) error {
	parsed, err := ParseUnitKind(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Keys of the flat metrics map handed to reporting collaborators.
const (
	KeyTotal       = "TOTAL"
	KeyCompleted   = "COMPLETED"
	KeyFailed      = "FAILED"
	KeyKilled      = "KILLED"
	KeyBytesCopied = "BYTESCOPIED"
	KeyFilesCopied = "COPY"
	KeyDirsCopied  = "DIR_COPY"
	KeyTimeTaken   = "TIMETAKEN"
	KeyProgress    = "PROGRESS"
	KeyUnit        = "UNIT"
)

// Progress is the canonical progress record of one replication attempt.
// It is recomputed on every poll and never accumulated across attempts.
type Progress struct {
	Total       int64         `json:"total"`
	Completed   int64         `json:"completed"`
	Failed      int64         `json:"failed"`
	Killed      int64         `json:"killed"`
	FilesCopied int64         `json:"filesCopied"`
	DirsCopied  int64         `json:"dirsCopied"`
	BytesCopied int64         `json:"bytesCopied"`
	TimeTaken   time.Duration `json:"timeTaken"`
	Percent     int64         `json:"percent"`
	Unit        UnitKind      `json:"unit"`
}

// Map flattens the record into the metrics map. TIMETAKEN is in milliseconds
// and UNIT carries the ordinal of the unit kind.
func (p Progress) Map() map[string]int64 {
	return map[string]int64{
		KeyTotal:       p.Total,
		KeyCompleted:   p.Completed,
		KeyFailed:      p.Failed,
		KeyKilled:      p.Killed,
		KeyBytesCopied: p.BytesCopied,
		KeyFilesCopied: p.FilesCopied,
		KeyDirsCopied:  p.DirsCopied,
		KeyTimeTaken:   p.TimeTaken.Milliseconds(),
		KeyProgress:    p.Percent,
		KeyUnit:        int64(p.Unit),
	}
}

// FromMap rebuilds a Progress from a metrics map. Absent keys read as zero.
func FromMap(m map[string]int64) Progress {
	return Progress{
		Total:       m[KeyTotal],
		Completed:   m[KeyCompleted],
		Failed:      m[KeyFailed],
		Killed:      m[KeyKilled],
		BytesCopied: m[KeyBytesCopied],
		FilesCopied: m[KeyFilesCopied],
		DirsCopied:  m[KeyDirsCopied],
		TimeTaken:   time.Duration(m[KeyTimeTaken]) * time.Millisecond,
		Percent:     m[KeyProgress],
		Unit:        UnitKind(m[KeyUnit]),
	}
}

// Done reports whether every counted unit has completed.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}
