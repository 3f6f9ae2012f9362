package hive

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/stratum-replicator/internal/engine"
)

// Session runs statements against one HiveServer2 endpoint.
type Session interface {
	Query(ctx context.Context, stmt string) (*engine.QueryResult, error)
	Script(ctx context.Context, stmts []string) (*engine.QueryResult, error)
	Close() error
}

// Connector opens sessions. *engine.HiveServer satisfies it through Dial.
type Connector interface {
	Connect(ctx context.Context, endpoint, principal string) (Session, error)
}

// Dial adapts an engine.HiveServer to Connector.
type Dial struct {
	Server *engine.HiveServer
}

func (d Dial) Connect(ctx context.Context, endpoint, principal string) (Session, error) {
	s, err := d.Server.Connect(ctx, endpoint, principal)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// lastReplID reads REPL STATUS. NULL or no rows yields -1.
func lastReplID(ctx context.Context, s Session, db string) (int64, error) {
	res, err := s.Query(ctx, StatusCommand(db))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read repl status of %s", db)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return -1, nil
	}
	v := strings.TrimSpace(res.Rows[0][0])
	if v == "" || strings.EqualFold(v, "NULL") {
		return -1, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid repl status %q", v)
	}
	return id, nil
}
