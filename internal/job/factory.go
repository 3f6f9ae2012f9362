package job

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// ActionTypeKey is the job property that selects a stage within a type.
const ActionTypeKey = "actionType"

// Constructor builds a job from its descriptor.
type Constructor func(details models.JobDetails, logger zerolog.Logger) (Job, error)

// Factory maps a replication type and optional action to a constructor.
type Factory struct {
	mu     sync.RWMutex
	ctors  map[string]Constructor
	logger zerolog.Logger
}

func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		ctors:  make(map[string]Constructor),
		logger: logger,
	}
}

func factoryKey(typ models.ReplicationType, action string) string {
	if action == "" {
		return string(typ)
	}
	return string(typ) + "/" + action
}

// Register binds a constructor. An empty action matches descriptors that
// carry no actionType property.
func (f *Factory) Register(typ models.ReplicationType, action string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[factoryKey(typ, action)] = ctor
}

func (f *Factory) New(details models.JobDetails) (Job, error) {
	action := details.Property(ActionTypeKey)

	f.mu.RLock()
	ctor, ok := f.ctors[factoryKey(details.Type, action)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no job registered for type %s action %q", details.Type, action)
	}

	logger := f.logger.With().
		Str("policy", details.Name).
		Str("job", details.Identifier).
		Logger()
	if action != "" {
		logger = logger.With().Str("action", action).Logger()
	}
	return ctor(details, logger)
}
