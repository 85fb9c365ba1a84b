package toolloop

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kiln-ai/router/pkg/models"
)

// CapabilityDecision is the per-tool outcome of a capability-store check.
type CapabilityDecision string

const (
	CapabilityAuthorized     CapabilityDecision = "authorized"
	CapabilityPendingApproval CapabilityDecision = "pending_approval"
	CapabilityUnauthorized   CapabilityDecision = "unauthorized"
)

// CapabilityStore is the narrow external collaborator interface consumed
// by tool authorization. The bundled default below answers every check
// as CapabilityAuthorized so the core runs standalone.
type CapabilityStore interface {
	Authorize(ctx context.Context, agentID, resource, action string) (CapabilityDecision, string, error)
}

// AllowAllCapabilityStore is the degrade-gracefully default used when no
// external capability store is wired.
type AllowAllCapabilityStore struct{}

func (AllowAllCapabilityStore) Authorize(context.Context, string, string, string) (CapabilityDecision, string, error) {
	return CapabilityAuthorized, "", nil
}

// StoreUnavailablePolicy controls the treatment of a capability-store
// error: store_unavailable is treated as authorized in dev, unauthorized
// in prod.
type StoreUnavailablePolicy string

const (
	StoreUnavailableAuthorize   StoreUnavailablePolicy = "authorize" // dev
	StoreUnavailableUnauthorize StoreUnavailablePolicy = "unauthorize" // prod
)

// Authorizer implements the Tool Authorization contract: filter(agent_id,
// tools) → authorized_tools ⊆ tools.
type Authorizer struct {
	store              CapabilityStore
	unavailablePolicy  StoreUnavailablePolicy
	logger             *slog.Logger
	onDenied           func(agentID string, denied []string)
}

// NewAuthorizer constructs an Authorizer. A nil store defaults to
// AllowAllCapabilityStore.
func NewAuthorizer(store CapabilityStore, unavailablePolicy StoreUnavailablePolicy, logger *slog.Logger, onDenied func(agentID string, denied []string)) *Authorizer {
	if store == nil {
		store = AllowAllCapabilityStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{store: store, unavailablePolicy: unavailablePolicy, logger: logger.With("component", "toolloop.authorization"), onDenied: onDenied}
}

// Filter returns the subset of tools the agent is authorized to call. A
// nil/empty agentID makes the filter the identity function.
//
// Tools whose check resolves to pending_approval are *excluded* from the
// returned set here — the Tool Loop Kernel's pre-flight step only needs a
// yes/no filter; callers needing the pending_approval distinction call
// Decide directly (the Dispatcher's authorized_generate queries the
// CapabilityStore itself).
func (a *Authorizer) Filter(ctx context.Context, agentID string, tools []models.ToolDescriptor) []models.ToolDescriptor {
	if agentID == "" {
		return tools
	}

	authorized := make([]models.ToolDescriptor, 0, len(tools))
	var denied []string
	for _, tool := range tools {
		decision, _ := a.Decide(ctx, agentID, tool.Name)
		if decision == CapabilityAuthorized {
			authorized = append(authorized, tool)
		} else {
			denied = append(denied, tool.Name)
		}
	}

	if len(denied) > 0 && a.onDenied != nil {
		a.onDenied(agentID, denied)
	}
	return authorized
}

// Decide runs the capability check for a single tool name. Any store
// error is logged at warning level and treated as store_unavailable,
// resolved per the configured policy: authorized under
// StoreUnavailableAuthorize, otherwise unauthorized with reason
// "store_unavailable".
func (a *Authorizer) Decide(ctx context.Context, agentID, toolName string) (CapabilityDecision, string) {
	resource := "actions/execute/" + normalizeToolName(toolName)
	decision, reason, err := a.store.Authorize(ctx, agentID, resource, "execute")
	if err != nil {
		a.logger.Warn("capability check failed, applying store-unavailable policy", "agent_id", agentID, "tool", toolName, "error", err)
		if a.unavailablePolicy == StoreUnavailableAuthorize {
			return CapabilityAuthorized, ""
		}
		return CapabilityUnauthorized, "store_unavailable"
	}
	return decision, reason
}

func normalizeToolName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
