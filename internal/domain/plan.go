package domain

// Plan is the structured output of one planner model call. Symbolic frame keys
// name frames the plan wants created; they have no real identity until the
// executor creates them and records the key → id mapping.
type Plan struct {
	Summary   string      `json:"summary"`
	NewFrames []PlanFrame `json:"new_frames,omitempty"`
	Moves     []PlanMove  `json:"moves,omitempty"`
	DeleteIDs []string    `json:"delete_ids,omitempty"`
	NewLeaves []PlanLeaf  `json:"new_objects,omitempty"`
	// TidyFrames lists frame ids whose children should be re-gridded after
	// the other phases ran.
	TidyFrames []string `json:"tidy_frames,omitempty"`
}

// PlanFrame is a frame the plan wants created, keyed symbolically.
type PlanFrame struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	// EstimatedChildren sizes the frame before any children exist.
	EstimatedChildren int `json:"estimated_children,omitempty"`
}

// PlanMove assigns an existing object to a target frame. Target is either a
// symbolic key from NewFrames or a real existing frame id; empty means
// detach to the canvas root.
type PlanMove struct {
	ObjectID string `json:"object_id"`
	Target   string `json:"target,omitempty"`
}

// PlanLeaf is a new leaf object, optionally targeting a symbolic or real frame.
type PlanLeaf struct {
	Type   ObjectType `json:"type"`
	Text   string     `json:"text,omitempty"`
	Color  string     `json:"color,omitempty"`
	Target string     `json:"target,omitempty"`
}

// Creates returns the total number of objects the plan would create.
func (p *Plan) Creates() int { return len(p.NewFrames) + len(p.NewLeaves) }

// PlanValidation is the outcome of validating a plan against the fixed
// ceilings. Warnings never reject a plan; they surface in progress and logs.
type PlanValidation struct {
	OK       bool     `json:"ok"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Plan validation ceilings.
const (
	PlanMaxCreates = 100
	PlanMaxDeletes = 200
	PlanMaxMoves   = 200
)
