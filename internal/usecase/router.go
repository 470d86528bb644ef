package usecase

import (
	"math"
	"regexp"
	"strings"

	"boardpilot/internal/domain"
)

// templateEditThreshold is the fraction of a template's expected frame titles
// that must already exist on the canvas for an edit-flavored command to route
// template_edit instead of template_create. Templates with two or fewer
// frames require every title.
const templateEditThreshold = 0.75

// strongTierRuneCount and strongTierConjunctions escalate create commands to
// the strong model: long or conjunction-heavy instructions need multi-step
// planning the fast tier handles poorly.
const (
	strongTierRuneCount    = 80
	strongTierConjunctions = 2
	strongTierObjectCount  = 150
)

var (
	queryRe        = regexp.MustCompile(`\b(what|how many|how much|count|summari[sz]e|describe|list|tell me|which|where|do (i|we) have|is there|are there)\b`)
	deleteRe       = regexp.MustCompile(`\b(delete|remove|clear|erase|wipe|get rid of)\b`)
	reorganizeRe   = regexp.MustCompile(`\b(reorgani[sz]e|organi[sz]e|group|cluster|tidy|clean up|sort|categori[sz]e|rearrange|restructure)\b`)
	selectionRe    = regexp.MustCompile(`\b(these|this|them|selected|selection)\b`)
	editVerbRe     = regexp.MustCompile(`\b(make|change|turn|set|color|colou?r|resize|move|align|update|rename|edit|fill|add|put)\b`)
	createRe       = regexp.MustCompile(`\b(add|create|make|draw|write|insert|put|new|build|place)\b`)
	connectorRe    = regexp.MustCompile(`\b(connect|arrow|link|flow)\b`)
	spatialRe      = regexp.MustCompile(`\b(grid|row|column|around|between|next to|below|above|under|beside)\b`)
	conjunctionRe  = regexp.MustCompile(`\b(and|then|also|plus)\b`)
	mutationVerbRe = regexp.MustCompile(`\b(add|create|make|draw|insert|put|build|place|delete|remove|clear|erase|wipe|move|resize|rename|change|connect)\b`)
)

// Tool subsets announced per intent. Nil means the full catalog.
var (
	queryTools     = []string{"get_context"}
	deleteTools    = []string{"bulk_delete", "get_context"}
	selectionTools = []string{
		"move_object", "resize_object", "update_text", "change_color",
		"add_to_frame", "remove_from_frame", "bulk_delete", "get_context",
	}
	createTools = []string{
		"create_leaf", "create_frame", "bulk_create", "add_to_frame",
		"move_object", "get_context",
	}
	createWideTools = []string{
		"create_leaf", "create_frame", "bulk_create", "create_connector",
		"add_to_frame", "move_object", "arrange_objects", "get_context",
	}
	templateEditTools = []string{
		"create_leaf", "create_frame", "bulk_create", "move_object",
		"resize_object", "update_text", "change_color", "add_to_frame",
		"remove_from_frame", "rearrange_frame", "get_context",
	}
)

// Route classifies one command into an intent, scope, tier, and tool subset.
// It is a pure ordered cascade over the command text and three canvas facts;
// identical inputs always produce the identical decision, so routing is
// replayable from logs.
func Route(command string, selectionCount, objectCount int, frameTitles []string) domain.RouteDecision {
	cmd := strings.ToLower(strings.TrimSpace(command))

	// 1. Template names beat everything: "swot" in a command is never an
	// accident.
	if id, edit := matchTemplate(cmd, frameTitles); id != "" {
		if edit {
			return domain.RouteDecision{
				Intent:       domain.IntentTemplateEdit,
				Scope:        domain.ScopeViewport,
				Tier:         domain.TierFast,
				TemplateID:   id,
				AllowedTools: templateEditTools,
			}
		}
		return domain.RouteDecision{
			Intent:     domain.IntentTemplateCreate,
			Scope:      domain.ScopeViewport,
			Tier:       domain.TierFast,
			TemplateID: id,
			EarlyExit:  true,
		}
	}

	// 2. Pure questions: mutation verbs disqualify, "delete whatever is red"
	// is not a query.
	if queryRe.MatchString(cmd) && !mutationVerbRe.MatchString(cmd) {
		return domain.RouteDecision{
			Intent:           domain.IntentQuery,
			Scope:            domain.ScopeBoard,
			Tier:             domain.TierFast,
			NeedsFullContext: true,
			AllowedTools:     queryTools,
		}
	}

	// 3. Deletion.
	if deleteRe.MatchString(cmd) {
		return domain.RouteDecision{
			Intent:           domain.IntentDelete,
			Scope:            domain.ScopeBoard,
			Tier:             domain.TierFast,
			NeedsFullContext: true,
			AllowedTools:     deleteTools,
			EarlyExit:        true,
		}
	}

	// 4. Reorganization always plans on the strong tier over the whole board.
	if reorganizeRe.MatchString(cmd) {
		return domain.RouteDecision{
			Intent:           domain.IntentReorganize,
			Scope:            domain.ScopeBoard,
			Tier:             domain.TierStrong,
			NeedsFullContext: true,
		}
	}

	// 5. Edits scoped to the current selection.
	if selectionCount > 0 && selectionRe.MatchString(cmd) && editVerbRe.MatchString(cmd) {
		return domain.RouteDecision{
			Intent:       domain.IntentSelectionEdit,
			Scope:        domain.ScopeSelected,
			Tier:         domain.TierFast,
			AllowedTools: selectionTools,
			EarlyExit:    true,
		}
	}

	// 6. Creation. Connector or spatial vocabulary widens the tool subset
	// and forfeits the early exit: those commands need follow-up calls.
	if createRe.MatchString(cmd) {
		widened := connectorRe.MatchString(cmd) || spatialRe.MatchString(cmd)
		tools := createTools
		if widened {
			tools = createWideTools
		}
		return domain.RouteDecision{
			Intent:       domain.IntentCreate,
			Scope:        domain.ScopeViewport,
			Tier:         createTier(cmd),
			AllowedTools: tools,
			EarlyExit:    !widened,
		}
	}

	// 7. Catch-all: full catalog, strong tier only when the board is large
	// enough that the fast tier tends to lose track.
	tier := domain.TierFast
	if objectCount > strongTierObjectCount {
		tier = domain.TierStrong
	}
	return domain.RouteDecision{
		Intent: domain.IntentGeneral,
		Scope:  domain.ScopeViewport,
		Tier:   tier,
	}
}

// createTier escalates long or conjunction-heavy creations.
func createTier(cmd string) domain.ModelTier {
	if len([]rune(cmd)) > strongTierRuneCount {
		return domain.TierStrong
	}
	if len(conjunctionRe.FindAllString(cmd, -1)) >= strongTierConjunctions {
		return domain.TierStrong
	}
	return domain.TierFast
}

// matchTemplate returns the first template whose keyword appears in the
// command, and whether the command should edit an existing instance rather
// than create a fresh one.
func matchTemplate(cmd string, frameTitles []string) (id string, edit bool) {
	for _, spec := range templateRegistry {
		if !spec.matches(cmd) {
			continue
		}
		if editVerbRe.MatchString(cmd) && templatePresent(spec, frameTitles) {
			return spec.ID, true
		}
		return spec.ID, false
	}
	return "", false
}

// templatePresent reports whether enough of the template's frames already
// exist on the canvas to treat it as instantiated.
func templatePresent(spec templateSpec, frameTitles []string) bool {
	if len(spec.Frames) == 0 {
		return false
	}
	existing := make(map[string]bool, len(frameTitles))
	for _, t := range frameTitles {
		existing[strings.ToLower(strings.TrimSpace(t))] = true
	}
	found := 0
	for _, f := range spec.Frames {
		if existing[strings.ToLower(f.Title)] {
			found++
		}
	}
	needed := int(math.Ceil(templateEditThreshold * float64(len(spec.Frames))))
	if len(spec.Frames) <= 2 {
		needed = len(spec.Frames)
	}
	return found >= needed
}
