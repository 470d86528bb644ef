package usecase

import (
	"fmt"
	"strings"

	"boardpilot/internal/domain"
)

// paletteWords is the fixed color vocabulary given to models. Palette is a
// map, so prompts use this list to stay byte-stable across runs.
const paletteWords = "yellow, orange, red, pink, purple, blue, cyan, green, gray, white, black"

const loopSystemPromptHeader = `You are a canvas assistant. You manipulate a shared whiteboard by calling tools.

Rules:
- Only reference object IDs that appear in the canvas summary below. Never invent IDs.
- Use bulk_create when creating three or more similar objects.
- Colors are words from this palette: ` + paletteWords + `.
- Coordinates are in canvas units; x grows right, y grows down.
- When the user asks a question, answer in plain text from the summary. Do not modify the canvas.
- After your tool calls finish, reply with one short sentence describing what you did.`

// loopSystemPrompt assembles the orchestration system message: fixed rules,
// the canvas digest, and per-intent guidance.
func loopSystemPrompt(digest string, decision domain.RouteDecision, selectedIDs []string) string {
	var b strings.Builder
	b.WriteString(loopSystemPromptHeader)

	switch decision.Intent {
	case domain.IntentQuery:
		b.WriteString("\n\nThe user is asking a question. Answer it textually; call get_context only if the summary is insufficient.")
	case domain.IntentDelete:
		b.WriteString("\n\nThe user wants objects removed. Prefer bulk_delete over individual deletions.")
	case domain.IntentSelectionEdit:
		b.WriteString("\n\nThe user's command refers to their current selection. Operate only on the selected objects listed below.")
	case domain.IntentTemplateEdit:
		if decision.TemplateID != "" {
			b.WriteString(fmt.Sprintf("\n\nThe canvas contains a %s layout. Edit the existing structure; do not rebuild it from scratch.", decision.TemplateID))
		}
	}

	if len(selectedIDs) > 0 {
		b.WriteString("\n\nSelected object IDs: ")
		b.WriteString(strings.Join(selectedIDs, ", "))
	}

	b.WriteString("\n\nCanvas summary:\n")
	b.WriteString(digest)
	return b.String()
}

const plannerSystemPrompt = `You are a canvas reorganization planner. Given a canvas summary and a command, produce a JSON plan. Respond with ONLY the JSON object, no prose and no code fences.

The plan shape:
{
  "summary": "one sentence describing the reorganization",
  "new_frames": [{"key": "k1", "title": "Frame Title", "estimated_children": 4}],
  "moves": [{"object_id": "id-from-summary", "target": "k1"}],
  "delete_ids": ["id-from-summary"],
  "new_objects": [{"type": "note", "text": "...", "color": "yellow", "target": "k1"}],
  "tidy_frames": ["k1"]
}

Rules:
- Frame keys ("k1", "k2", ...) are symbolic names for frames the plan creates. A move or new object may target a frame key, an existing frame ID from the summary, or "" to leave an object unparented.
- Only use object IDs that appear in the summary. Never invent IDs.
- estimated_children is how many objects the frame will hold after the plan runs; it sizes the frame.
- Create at most 100 objects, delete at most 200, move at most 200.
- Colors are words from this palette: ` + paletteWords + `.
- Omit empty sections rather than sending empty arrays.`

func plannerUserPrompt(digest, command string) string {
	return fmt.Sprintf("Canvas summary:\n%s\n\nCommand: %s\n\nRespond with the plan JSON.", digest, command)
}

const templateContentSystemPrompt = `You fill whiteboard template sections with starter content. Respond with ONLY a JSON object, no prose and no code fences:

{"items": {"Section Title": ["short item", "short item"]}}

Rules:
- Use the exact section titles you are given as keys.
- Write 3 to 5 items per section, each under 10 words.
- Items must be concrete and specific to the user's topic. If no topic is given, leave the arrays empty.`

func templateContentUserPrompt(spec templateSpec, command string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\nSections:\n", spec.Name)
	for _, f := range spec.Frames {
		b.WriteString("- ")
		b.WriteString(f.Title)
		if f.Hint != "" {
			b.WriteString(" (")
			b.WriteString(f.Hint)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser command: %s", command)
	return b.String()
}

const extractorSystemPrompt = `You classify whiteboard commands into a small set of simple operations. Respond with ONLY a JSON object, no prose and no code fences:

{"kind": "...", "count": 0, "color": "", "objectType": "", "topic": "", "frame": "", "confidence": 0.0}

Kinds:
- "delete_all": remove every object on the board
- "delete_by_type": remove all objects of one type (objectType required)
- "delete_except": remove all shapes except one shape type (objectType is the type to keep)
- "create_notes": create count sticky notes, optionally about a topic
- "create_note": create one sticky note; topic holds its text, frame an optional target frame title
- "create_shapes": create count shapes of objectType
- "summarize": describe what is on the board

Rules:
- objectType is one of: note, rectangle, circle, diamond, line, text, frame.
- color, when present, is a word from this palette: ` + paletteWords + `.
- confidence is 0.0 to 1.0: how certain you are that the command means exactly this operation and nothing more.
- If the command involves positioning, selection, connectors, frames to create, or multiple operations, it does not fit: use confidence 0.`

// extractorUserPrompt wraps the raw command; kept separate so tests can
// assert the exact message the extractor sees.
func extractorUserPrompt(command string) string {
	return "Command: " + command
}
