package engine

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const scriptDir = "/tmp/replicator"

type HiveConfig struct {
	Container  string
	BeelineBin string
	Timeout    time.Duration
}

// HiveServer opens beeline sessions against HiveServer2 endpoints from a
// client container.
type HiveServer struct {
	runner Runner
	cfg    HiveConfig
	logger zerolog.Logger
}

func NewHiveServer(r Runner, cfg HiveConfig, logger zerolog.Logger) *HiveServer {
	if cfg.BeelineBin == "" {
		cfg.BeelineBin = "beeline"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &HiveServer{
		runner: r,
		cfg:    cfg,
		logger: logger.With().Str("component", "hive_client").Logger(),
	}
}

// JDBCURL builds the beeline connection URL of an endpoint such as
// hive2://host:10000, adding the Kerberos principal when set.
func JDBCURL(endpoint, principal string) string {
	u := strings.TrimSpace(endpoint)
	if !strings.HasPrefix(u, "jdbc:") {
		u = "jdbc:" + u
	}
	if rest := strings.TrimPrefix(u, "jdbc:hive2://"); !strings.Contains(rest, "/") {
		u += "/default"
	}
	if principal != "" {
		u += ";principal=" + principal
	}
	return u
}

// Connect opens a session and checks that the endpoint answers.
func (h *HiveServer) Connect(ctx context.Context, endpoint, principal string) (*HiveSession, error) {
	s := &HiveSession{server: h, url: JDBCURL(endpoint, principal)}
	if _, err := s.Query(ctx, "SELECT 1"); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint)
	}
	return s, nil
}

// QueryResult carries the result rows and the server operation log.
type QueryResult struct {
	Rows [][]string
	Log  []string
}

// HiveSession is bound to one endpoint and one job instance.
type HiveSession struct {
	server *HiveServer
	url    string

	mu     sync.Mutex
	closed bool
}

var ErrSessionClosed = errors.New("hive session closed")

func (s *HiveSession) args() []string {
	return []string{
		s.server.cfg.BeelineBin,
		"-u", s.url,
		"--silent=true",
		"--showHeader=false",
		"--outputformat=tsv2",
		"--verbose=true",
	}
}

func (s *HiveSession) exec(ctx context.Context, cmd []string) (*QueryResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	res, err := s.server.runner.Exec(ctx, s.server.cfg.Container, cmd, WithTimeout(s.server.cfg.Timeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to run beeline")
	}
	if err := res.Err("beeline"); err != nil {
		return nil, err
	}
	return &QueryResult{Rows: ParseRows(res.Stdout), Log: SplitLines(res.Stderr)}, nil
}

// Query runs a single statement.
func (s *HiveSession) Query(ctx context.Context, stmt string) (*QueryResult, error) {
	s.server.logger.Debug().Str("url", s.url).Str("stmt", stmt).Msg("query")
	return s.exec(ctx, append(s.args(), "-e", stmt))
}

// Script uploads the statements as one file and runs it with beeline -f.
func (s *HiveSession) Script(ctx context.Context, stmts []string) (*QueryResult, error) {
	var b strings.Builder
	for _, stmt := range stmts {
		b.WriteString(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
		b.WriteString(";\n")
	}
	name := fmt.Sprintf("script-%s.sql", uuid.NewString())
	mkdir, err := s.server.runner.Exec(ctx, s.server.cfg.Container, []string{"mkdir", "-p", scriptDir})
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare script directory")
	}
	if err := mkdir.Err("mkdir"); err != nil {
		return nil, err
	}
	if err := s.server.runner.CopyTo(ctx, s.server.cfg.Container, scriptDir, []byte(b.String()), name); err != nil {
		return nil, errors.Wrap(err, "failed to upload script")
	}
	return s.exec(ctx, append(s.args(), "-f", path.Join(scriptDir, name)))
}

// Close is idempotent.
func (s *HiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
