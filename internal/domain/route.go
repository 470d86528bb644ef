package domain

// Intent is the router's classification of what a command is trying to do.
type Intent string

const (
	IntentTemplateCreate Intent = "template_create"
	IntentTemplateEdit   Intent = "template_edit"
	IntentQuery          Intent = "query"
	IntentDelete         Intent = "delete"
	IntentReorganize     Intent = "reorganize"
	IntentSelectionEdit  Intent = "selection_edit"
	IntentCreate         Intent = "create"
	IntentGeneral        Intent = "general"
)

// ContextScope bounds how much canvas context a model call receives.
type ContextScope string

const (
	ScopeSelected ContextScope = "selected"
	ScopeViewport ContextScope = "viewport"
	ScopeBoard    ContextScope = "board"
)

// ModelTier selects which configured model handles a command.
type ModelTier string

const (
	TierFast   ModelTier = "fast"
	TierStrong ModelTier = "strong"
)

// Route source identifiers reported in ExecutionResult.RouteSource.
const (
	RouteSourcePattern   = "pattern"
	RouteSourceExtractor = "extractor"
)

// RouteDecision is the router's ephemeral output for one command. It is never
// persisted; an identical command against identical canvas stats always yields
// an identical decision.
type RouteDecision struct {
	Intent           Intent
	Scope            ContextScope
	Tier             ModelTier
	TemplateID       string
	NeedsFullContext bool
	AllowedTools     []string
	// EarlyExit marks intents simple enough for the orchestrator to stop
	// after one successful mutating round instead of paying a second,
	// purely summarizing model call.
	EarlyExit bool
}
