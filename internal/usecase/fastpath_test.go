package usecase

import (
	"context"
	"testing"

	"boardpilot/internal/domain"
)

func TestParseFastPath(t *testing.T) {
	tests := []struct {
		command string
		want    *FastMatch // nil means no match
	}{
		{"delete everything", &FastMatch{Kind: FastDeleteAll}},
		{"please clear the board", &FastMatch{Kind: FastDeleteAll}},
		{"Wipe the entire canvas!", &FastMatch{Kind: FastDeleteAll}},
		{"delete all notes", &FastMatch{Kind: FastDeleteByType, ObjectType: "note"}},
		{"remove the circles", &FastMatch{Kind: FastDeleteByType, ObjectType: "circle"}},
		{"delete all stickies", &FastMatch{Kind: FastDeleteByType, ObjectType: "note"}},
		{"remove all shapes except the circles", &FastMatch{Kind: FastDeleteExcept, ObjectType: "circle"}},
		{"add 3 yellow sticky notes about Marketing", &FastMatch{Kind: FastCreateNotes, Count: 3, Color: "yellow", Topic: "Marketing"}},
		{"add a few notes", &FastMatch{Kind: FastCreateNotes, Count: 3}},
		{"create ten notes", &FastMatch{Kind: FastCreateNotes, Count: 10}},
		{"add a note", &FastMatch{Kind: FastCreateNote, Count: 1}},
		{"add a green note", &FastMatch{Kind: FastCreateNote, Count: 1, Color: "green"}},
		{`add a note that says "Buy milk" to the Groceries frame`, &FastMatch{Kind: FastCreateNote, Count: 1, Text: "Buy milk", Frame: "Groceries"}},
		{"add a note in Sprint", &FastMatch{Kind: FastCreateNote, Count: 1, Frame: "Sprint"}},
		{"draw 3 circles", &FastMatch{Kind: FastCreateShapes, Count: 3, ObjectType: "circle"}},
		{"add a rectangle", &FastMatch{Kind: FastCreateShapes, Count: 1, ObjectType: "rectangle"}},
		{"draw two red diamonds", &FastMatch{Kind: FastCreateShapes, Count: 2, Color: "red", ObjectType: "diamond"}},
		{"summarize the board", &FastMatch{Kind: FastSummarize}},
		{"What's on the canvas?", &FastMatch{Kind: FastSummarize}},
		{"give me an overview of the board", &FastMatch{Kind: FastSummarize}},

		// Must not match: anything compound, spatial, or ambiguous.
		{"add 3 notes and 2 circles", nil},
		{"move the blue note left", nil},
		{"delete the selected notes", nil},
		{"add 3 notes on the left", nil},
		{"add a big note", nil},
		{"connect the two circles", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got := ParseFastPath(tt.command)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("ParseFastPath(%q) = %+v, want no match", tt.command, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseFastPath(%q) = nil, want %+v", tt.command, tt.want)
			}
			if got.Kind != tt.want.Kind || got.Count != tt.want.Count ||
				got.ObjectType != tt.want.ObjectType || got.Color != tt.want.Color ||
				got.Topic != tt.want.Topic || got.Text != tt.want.Text || got.Frame != tt.want.Frame {
				t.Errorf("ParseFastPath(%q) = %+v, want %+v", tt.command, got, tt.want)
			}
			if got.Source != domain.RouteSourcePattern || got.Confidence != 1 {
				t.Errorf("pattern match must report source=pattern confidence=1, got %+v", got)
			}
		})
	}
}

func newTestFastPath(models ModelRouter) *FastPath {
	return NewFastPath(models, false, 0, 0, testLogger())
}

func TestFastPathDeleteAll(t *testing.T) {
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		if call.Name != "bulk_delete" {
			t.Errorf("unexpected tool %s", call.Name)
		}
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"all (2)"}}
	}}
	objects := []domain.Object{testNote("n1", 0, 0), testNote("n2", 300, 0)}
	connectors := []domain.Connector{{ID: "c1"}}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "delete everything"}, runner, objects, connectors)

	if res == nil || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.DeletedIDs) != 1 || res.DeletedIDs[0] != "all (2)" {
		t.Errorf("deleted ids = %v", res.DeletedIDs)
	}
	if res.ModelTier != domain.TierFastPath {
		t.Errorf("tier = %q", res.ModelTier)
	}
	if res.Message != "Deleted all 2 objects and 1 connectors." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestFastPathCreateNotesArgs(t *testing.T) {
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"a", "b", "c"}}
	}}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "add 3 yellow notes about Launch"}, runner, nil, nil)

	if res == nil || len(res.CreatedIDs) != 3 {
		t.Fatalf("result = %+v", res)
	}
	args := runner.argsOf(0)
	items, ok := args["items"].([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("items = %v", args["items"])
	}
	first := items[0].(map[string]any)
	if first["text"] != "Launch 1" || first["color"] != "yellow" || first["type"] != "note" {
		t.Errorf("first item = %v", first)
	}
	last := items[2].(map[string]any)
	if last["text"] != "Launch 3" {
		t.Errorf("last item = %v", last)
	}
}

func TestFastPathAbandonsOnFailure(t *testing.T) {
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: false, Error: "store down"}
	}}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "delete all notes"}, runner, nil, nil)
	if res != nil {
		t.Fatalf("failed execution must return nil, got %+v", res)
	}
}

func TestFastPathNoteIntoMissingFrame(t *testing.T) {
	runner := &mockRunner{}
	objects := []domain.Object{testNote("n1", 0, 0)} // no frames at all

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "add a note in Sprint"}, runner, objects, nil)
	if res != nil {
		t.Fatalf("missing frame must fall through, got %+v", res)
	}
	if len(runner.calls()) != 0 {
		t.Errorf("no tool call should happen when the frame is unknown")
	}
}

func TestFastPathNoteIntoNamedFrame(t *testing.T) {
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectID: "new-note"}
	}}
	objects := []domain.Object{testFrame("f1", "Sprint", 0, 0, 400, 300)}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: `add a note that says "standup" in the sprint frame`}, runner, objects, nil)
	if res == nil || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	args := runner.argsOf(0)
	if args["frame_id"] != "f1" {
		t.Errorf("frame_id = %v, title match must be case-insensitive", args["frame_id"])
	}
	if args["text"] != "standup" {
		t.Errorf("text = %v", args["text"])
	}
}

func TestFastPathDeleteExcept(t *testing.T) {
	var deletedTypes []string
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"x"}}
	}}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "delete all shapes except circles"}, runner, nil, nil)
	if res == nil || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	for i := range runner.calls() {
		deletedTypes = append(deletedTypes, runner.argsOf(i)["object_type"].(string))
	}
	want := []string{"rectangle", "diamond", "line"}
	if len(deletedTypes) != len(want) {
		t.Fatalf("deleted types = %v, want %v", deletedTypes, want)
	}
	for i, dt := range deletedTypes {
		if dt != want[i] {
			t.Errorf("deleted types = %v, want %v", deletedTypes, want)
			break
		}
	}
	if len(res.DeletedIDs) != 3 {
		t.Errorf("deleted ids = %v", res.DeletedIDs)
	}
}

func TestFastPathSummarizeReadsOnly(t *testing.T) {
	runner := &mockRunner{}
	objects := []domain.Object{testNote("n1", 0, 0), testShape("r1", domain.TypeRectangle, 300, 0)}

	res := newTestFastPath(&mockModels{}).Run(context.Background(),
		domain.CommandRequest{Command: "summarize the board"}, runner, objects, nil)
	if res == nil || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(runner.calls()) != 0 {
		t.Errorf("summarize must not call tools")
	}
	if res.Message == "" || res.CreatedIDs != nil || res.DeletedIDs != nil {
		t.Errorf("summarize result = %+v", res)
	}
}

func TestFastPathExtractor(t *testing.T) {
	t.Run("disabled never calls the model", func(t *testing.T) {
		provider := &mockProvider{}
		fp := NewFastPath(&mockModels{fast: provider}, false, 0.8, 0, testLogger())
		res := fp.Run(context.Background(),
			domain.CommandRequest{Command: "pop three stickies onto the board"}, &mockRunner{}, nil, nil)
		if res != nil || provider.calls() != 0 {
			t.Fatalf("res = %+v, provider calls = %d", res, provider.calls())
		}
	})

	t.Run("confident extraction executes", func(t *testing.T) {
		provider := &mockProvider{replies: []mockReply{
			{resp: textResponse(`{"kind":"create_notes","count":2,"confidence":0.92}`)},
		}}
		runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
			return &domain.ToolResult{Success: true, ObjectIDs: []string{"a", "b"}}
		}}
		fp := NewFastPath(&mockModels{fast: provider}, true, 0.8, 0, testLogger())

		res := fp.Run(context.Background(),
			domain.CommandRequest{Command: "pop two stickies onto the board"}, runner, nil, nil)
		if res == nil || !res.Success {
			t.Fatalf("result = %+v", res)
		}
		if res.RouteSource != domain.RouteSourceExtractor {
			t.Errorf("route source = %q", res.RouteSource)
		}
		if res.RouteConfidence != 0.92 {
			t.Errorf("confidence = %v", res.RouteConfidence)
		}
		if len(res.CreatedIDs) != 2 {
			t.Errorf("created = %v", res.CreatedIDs)
		}
	})

	t.Run("low confidence falls through", func(t *testing.T) {
		provider := &mockProvider{replies: []mockReply{
			{resp: textResponse(`{"kind":"create_notes","count":2,"confidence":0.5}`)},
		}}
		runner := &mockRunner{}
		fp := NewFastPath(&mockModels{fast: provider}, true, 0.8, 0, testLogger())

		if res := fp.Run(context.Background(),
			domain.CommandRequest{Command: "pop two stickies onto the board"}, runner, nil, nil); res != nil {
			t.Fatalf("res = %+v", res)
		}
		if len(runner.calls()) != 0 {
			t.Errorf("low confidence must not execute tools")
		}
	})

	t.Run("garbage reply falls through silently", func(t *testing.T) {
		provider := &mockProvider{replies: []mockReply{
			{resp: textResponse("sure, I'd classify that as a creation!")},
		}}
		fp := NewFastPath(&mockModels{fast: provider}, true, 0.8, 0, testLogger())

		if res := fp.Run(context.Background(),
			domain.CommandRequest{Command: "pop two stickies onto the board"}, &mockRunner{}, nil, nil); res != nil {
			t.Fatalf("res = %+v", res)
		}
	})
}
