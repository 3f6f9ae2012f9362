package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"go.temporal.io/api/serviceerror"
)

// PolicyBuilder translates a policy into its job stages. Building is how a
// submission is validated.
type PolicyBuilder interface {
	Build(ctx context.Context, p models.Policy) ([]models.JobDetails, error)
}

// ConflictGuard runs activate only when the candidate's datasets do not
// overlap those of another active policy.
type ConflictGuard interface {
	Activate(ctx context.Context, candidate models.ActiveDataset, activate func(context.Context) error) error
}

type PolicyNotifier interface {
	NotifyPolicySubmitted(ctx context.Context, policy models.Policy) error
}

// WorkflowCanceller requests cancellation of a running workflow.
type WorkflowCanceller interface {
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
}

type PolicyHandler struct {
	policies  repository.PolicyRepository
	instances repository.InstanceRepository
	builder   PolicyBuilder
	guard     ConflictGuard
	notifier  PolicyNotifier
	workflows WorkflowCanceller
	logger    zerolog.Logger
}

func NewPolicyHandler(
	policies repository.PolicyRepository,
	instances repository.InstanceRepository,
	builder PolicyBuilder,
	guard ConflictGuard,
	notifier PolicyNotifier,
	workflows WorkflowCanceller,
	logger zerolog.Logger,
) *PolicyHandler {
	return &PolicyHandler{
		policies:  policies,
		instances: instances,
		builder:   builder,
		guard:     guard,
		notifier:  notifier,
		workflows: workflows,
		logger:    logger.With().Str("handler", "policy").Logger(),
	}
}

func activeDataset(p models.Policy) models.ActiveDataset {
	return models.ActiveDataset{
		Policy:        p.Name,
		Type:          p.Type,
		SourceDataset: p.SourceDataset,
		TargetDataset: p.TargetDataset,
	}
}

// Submit validates a policy by building its jobs, then persists it unless
// its datasets overlap an active policy of the same type.
func (h *PolicyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload models.Policy
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		http.Error(w, "Policy name is required", http.StatusBadRequest)
		return
	}
	typ, err := models.ParseReplicationType(string(payload.Type))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	payload.Type = typ
	if payload.FrequencyInSec <= 0 {
		http.Error(w, "frequencyInSec must be positive", http.StatusBadRequest)
		return
	}
	if payload.StartTime != nil && payload.EndTime != nil && !payload.EndTime.After(*payload.StartTime) {
		http.Error(w, "endTime must be after startTime", http.StatusBadRequest)
		return
	}
	payload.Status = models.PolicyStatusSubmitted
	payload.NextRunAt = nil

	if _, err := h.builder.Build(r.Context(), payload); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, h.logger, err, "Failed to validate policy")
		return
	}

	var created models.Policy
	err = h.guard.Activate(r.Context(), activeDataset(payload), func(ctx context.Context) error {
		var createErr error
		created, createErr = h.policies.Create(ctx, payload)
		return createErr
	})
	if err != nil {
		writeError(w, h.logger, err, "Failed to submit policy")
		return
	}

	if err := h.notifier.NotifyPolicySubmitted(r.Context(), created); err != nil {
		h.logger.Warn().Err(err).Str("policy", created.Name).Msg("failed to publish policy submission")
	}
	h.logger.Info().Str("policy", created.Name).Str("type", string(created.Type)).Msg("policy submitted")
	writeJSON(w, http.StatusCreated, created)
}

func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "Failed to list policies")
		return
	}
	if policies == nil {
		policies = []models.Policy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to get policy")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Suspend stops scheduling of an active policy. A running instance is
// left to finish.
func (h *PolicyHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to get policy")
		return
	}
	if !p.Status.Active() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "policy " + p.Name + " is " + string(p.Status)})
		return
	}
	if err := h.policies.UpdateStatus(r.Context(), p.Name, models.PolicyStatusSuspended); err != nil {
		writeError(w, h.logger, err, "Failed to suspend policy")
		return
	}
	p.Status = models.PolicyStatusSuspended
	writeJSON(w, http.StatusOK, p)
}

// Resume re-activates a suspended policy. Its datasets are checked again
// since other policies may have claimed them in the meantime.
func (h *PolicyHandler) Resume(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to get policy")
		return
	}
	if p.Status != models.PolicyStatusSuspended {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "policy " + p.Name + " is not suspended"})
		return
	}
	err = h.guard.Activate(r.Context(), activeDataset(p), func(ctx context.Context) error {
		return h.policies.UpdateStatus(ctx, p.Name, models.PolicyStatusSubmitted)
	})
	if err != nil {
		writeError(w, h.logger, err, "Failed to resume policy")
		return
	}
	p.Status = models.PolicyStatusSubmitted
	writeJSON(w, http.StatusOK, p)
}

// Delete marks the policy DELETED and cancels its running instance, if any.
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.policies.UpdateStatus(r.Context(), name, models.PolicyStatusDeleted); err != nil {
		writeError(w, h.logger, err, "Failed to delete policy")
		return
	}
	if err := h.cancel(r.Context(), name); err != nil && !isNotFound(err) {
		h.logger.Warn().Err(err).Str("policy", name).Msg("failed to cancel running instance of deleted policy")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PolicyHandler) Instances(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.policies.Get(r.Context(), name); err != nil {
		writeError(w, h.logger, err, "Failed to get policy")
		return
	}
	instances, err := h.instances.ListByPolicy(r.Context(), name, intQuery(r, "limit", 20))
	if err != nil {
		writeError(w, h.logger, err, "Failed to list instances")
		return
	}
	if instances == nil {
		instances = []models.PolicyInstance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

// Status returns the latest instance of the policy.
func (h *PolicyHandler) Status(w http.ResponseWriter, r *http.Request) {
	inst, err := h.instances.Latest(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, h.logger, err, "Failed to get policy status")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Abort cancels the running instance. The workflow records it as KILLED.
func (h *PolicyHandler) Abort(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.policies.Get(r.Context(), name); err != nil {
		writeError(w, h.logger, err, "Failed to get policy")
		return
	}
	if err := h.cancel(r.Context(), name); err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no running instance of policy " + name})
			return
		}
		writeError(w, h.logger, err, "Failed to abort instance")
		return
	}
	h.logger.Info().Str("policy", name).Msg("instance abort requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"policy": name, "status": "aborting"})
}

func (h *PolicyHandler) cancel(ctx context.Context, policyName string) error {
	return h.workflows.CancelWorkflow(ctx, temporal.WorkflowID(policyName), "")
}

func isNotFound(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}
