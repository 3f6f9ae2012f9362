package job

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/progress"
)

// Side-channel keys shared between the stages of one instance. They are
// part of the persisted format and must not change.
const (
	KeyDumpDirectory   = "dumpDirectory"
	KeyExecutionStatus = "instanceExecutionStatus"
	KeyBootstrap       = "bootstrap"
)

// State is the side channel carried between the stages of one instance
// and across crash recovery.
type State struct {
	DumpDirectory   string            `json:"dumpDirectory,omitempty"`
	ExecutionStatus *ExecutionDetails `json:"instanceExecutionStatus,omitempty"`
	Bootstrap       bool              `json:"bootstrap,omitempty"`
	Extras          map[string]string `json:"extras,omitempty"`
}

func DecodeState(data []byte) (State, error) {
	var s State
	if len(data) == 0 || string(data) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errors.Wrap(err, "failed to decode job context")
	}
	return s, nil
}

func (s State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Context is the per-instance execution context handed to every job
// operation. Cancellation travels separately through context.Context.
type Context struct {
	InstanceID string
	Attempt    int
	Logger     zerolog.Logger

	mu       sync.Mutex
	state    State
	reporter func(progress.Progress)
}

func NewContext(instanceID string, state State, logger zerolog.Logger) *Context {
	return &Context{
		InstanceID: instanceID,
		Attempt:    1,
		Logger:     logger.With().Str("instance", instanceID).Logger(),
		state:      state,
	}
}

// State returns a copy of the side channel.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if c.state.ExecutionStatus != nil {
		d := *c.state.ExecutionStatus
		s.ExecutionStatus = &d
	}
	if c.state.Extras != nil {
		s.Extras = make(map[string]string, len(c.state.Extras))
		for k, v := range c.state.Extras {
			s.Extras[k] = v
		}
	}
	return s
}

func (c *Context) DumpDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.DumpDirectory
}

func (c *Context) SetDumpDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.DumpDirectory = dir
}

func (c *Context) Bootstrap() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Bootstrap
}

func (c *Context) SetBootstrap(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Bootstrap = v
}

// ExecutionDetails returns the last recorded outcome, or nil.
func (c *Context) ExecutionDetails() *ExecutionDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.ExecutionStatus == nil {
		return nil
	}
	d := *c.state.ExecutionStatus
	return &d
}

func (c *Context) SetExecutionDetails(d *ExecutionDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == nil {
		c.state.ExecutionStatus = nil
		return
	}
	cp := *d
	c.state.ExecutionStatus = &cp
}

// Get reads a provider-specific extra by key. The typed keys are also
// readable here so that callers holding only a key name can inspect them.
func (c *Context) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case KeyDumpDirectory:
		return c.state.DumpDirectory, c.state.DumpDirectory != ""
	case KeyBootstrap:
		return strconv.FormatBool(c.state.Bootstrap), true
	case KeyExecutionStatus:
		if c.state.ExecutionStatus == nil {
			return "", false
		}
		b, err := json.Marshal(c.state.ExecutionStatus)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	v, ok := c.state.Extras[key]
	return v, ok
}

func (c *Context) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Extras == nil {
		c.state.Extras = make(map[string]string)
	}
	c.state.Extras[key] = value
}

// OnProgress registers the callback that receives progress updates.
func (c *Context) OnProgress(fn func(progress.Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporter = fn
}

func (c *Context) ReportProgress(p progress.Progress) {
	c.mu.Lock()
	fn := c.reporter
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}
