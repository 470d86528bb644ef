package usecase

import (
	"fmt"
	"strings"
	"testing"

	"boardpilot/internal/domain"
)

func TestBuildDigestEmptyCanvas(t *testing.T) {
	got := BuildDigest(nil, DigestOptions{Scope: domain.ScopeBoard, IncludeDetail: true})
	if got != "The canvas is empty. No objects exist yet." {
		t.Fatalf("empty digest = %q", got)
	}
}

func TestBuildDigestHeaderCounts(t *testing.T) {
	objects := []domain.Object{
		testNote("n1", 0, 0),
		testNote("n2", 300, 0),
		testShape("r1", domain.TypeRectangle, 600, 0),
		testFrame("f1", "Sprint", 100, 500, 400, 300),
	}

	got := BuildDigest(objects, DigestOptions{Scope: domain.ScopeBoard, ConnectorCount: 2})
	wantHeader := "Canvas: 4 objects (2 notes, 1 rectangle, 1 frame), 2 connectors.\n"
	if !strings.HasPrefix(got, wantHeader) {
		t.Errorf("header = %q, want prefix %q", got, wantHeader)
	}

	got = BuildDigest(objects, DigestOptions{Scope: domain.ScopeBoard})
	if strings.Contains(got, "connector") {
		t.Errorf("zero connectors must omit the clause, got %q", got)
	}
}

func TestBuildDigestFrameSection(t *testing.T) {
	objects := []domain.Object{
		testFrame("f1", "Sprint", 100, 100, 400, 300),
		testFrame("f2", "", 600, 100, 400, 300),
		childNote("n1", "f1", 120, 140),
		childNote("n2", "f1", 120, 300),
	}

	got := BuildDigest(objects, DigestOptions{Scope: domain.ScopeBoard})
	if !strings.Contains(got, "Frames:\n") {
		t.Fatalf("missing frames section: %q", got)
	}
	if !strings.Contains(got, `- [f1] "Sprint" at (100,100) 400x300, 2 children`) {
		t.Errorf("frame line wrong: %q", got)
	}
	if !strings.Contains(got, `- [f2] "(untitled)"`) {
		t.Errorf("untitled frame not labeled: %q", got)
	}
}

func TestBuildDigestScopes(t *testing.T) {
	objects := []domain.Object{
		testFrame("f1", "Backlog", 0, 0, 400, 300),
		childNote("in-frame", "f1", 20, 40),
		testNote("picked", 600, 600),
		testNote("far", 5000, 5000),
	}

	t.Run("selected includes frame children", func(t *testing.T) {
		got := BuildDigest(objects, DigestOptions{
			Scope:         domain.ScopeSelected,
			SelectedIDs:   []string{"picked", "f1"},
			IncludeDetail: true,
		})
		if !strings.Contains(got, "Objects (selected):") {
			t.Fatalf("missing selected header: %q", got)
		}
		for _, id := range []string{"[picked]", "[in-frame]"} {
			if !strings.Contains(got, id) {
				t.Errorf("selected digest missing %s: %q", id, got)
			}
		}
		if strings.Contains(got, "[far]") {
			t.Errorf("unselected object leaked into detail: %q", got)
		}
	})

	t.Run("viewport uses expanded region", func(t *testing.T) {
		got := BuildDigest(objects, DigestOptions{
			Scope:         domain.ScopeViewport,
			Viewport:      domain.Viewport{X: 0, Y: 0, Width: 500, Height: 500},
			IncludeDetail: true,
		})
		if !strings.Contains(got, "Objects (viewport):") {
			t.Fatalf("missing viewport header: %q", got)
		}
		// (600,600) is within the 200-unit margin; (5000,5000) is not.
		if !strings.Contains(got, "[picked]") {
			t.Errorf("near-viewport object excluded: %q", got)
		}
		if strings.Contains(got, "[far]") {
			t.Errorf("distant object included: %q", got)
		}
	})

	t.Run("board lists every leaf", func(t *testing.T) {
		got := BuildDigest(objects, DigestOptions{Scope: domain.ScopeBoard, IncludeDetail: true})
		for _, id := range []string{"[in-frame]", "[picked]", "[far]"} {
			if !strings.Contains(got, id) {
				t.Errorf("board digest missing %s", id)
			}
		}
	})
}

func TestBuildDigestDetailCap(t *testing.T) {
	objects := make([]domain.Object, 0, 50)
	for i := 0; i < 50; i++ {
		objects = append(objects, testNote(fmt.Sprintf("n%02d", i), float64(i*10), 0))
	}

	got := BuildDigest(objects, DigestOptions{
		Scope:            domain.ScopeBoard,
		IncludeDetail:    true,
		MaxDetailObjects: 40,
	})
	if n := strings.Count(got, "- ["); n != 40 {
		t.Errorf("detail lines = %d, want 40", n)
	}
	if !strings.Contains(got, "…and 10 more") {
		t.Errorf("missing overflow marker: %q", got)
	}
	// First objects in input order survive the cap.
	if !strings.Contains(got, "[n00]") || strings.Contains(got, "[n45]") {
		t.Errorf("cap did not keep input order: %q", got)
	}
}

func TestBuildDigestObjectLine(t *testing.T) {
	frame := testFrame("f1", "Ideas", 0, 0, 400, 300)
	note := childNote("n1", "f1", 20.4, 39.6)
	note.Text = "  plan   the\nlaunch  "

	got := BuildDigest([]domain.Object{frame, note}, DigestOptions{
		Scope: domain.ScopeBoard, IncludeDetail: true,
	})
	want := `- [n1] note "plan the launch" at (20,40) 200x140 #FFF9B1 in "Ideas"`
	if !strings.Contains(got, want) {
		t.Errorf("object line:\n got %q\nwant substring %q", got, want)
	}
}

func TestBuildDigestDeterministic(t *testing.T) {
	objects := []domain.Object{
		testFrame("f1", "A", 0, 0, 400, 300),
		testNote("n1", 500, 0),
		testShape("c1", domain.TypeCircle, 800, 0),
	}
	opts := DigestOptions{Scope: domain.ScopeBoard, IncludeDetail: true, ConnectorCount: 1}

	first := BuildDigest(objects, opts)
	for i := 0; i < 5; i++ {
		if again := BuildDigest(objects, opts); again != first {
			t.Fatalf("digest changed between runs:\n%q\n%q", first, again)
		}
	}
}

func TestBuildDigestSkipsDetailWhenDisabled(t *testing.T) {
	objects := []domain.Object{testNote("n1", 0, 0), testNote("n2", 100, 0)}
	got := BuildDigest(objects, DigestOptions{Scope: domain.ScopeBoard})
	if strings.Contains(got, "Objects:") {
		t.Errorf("detail section present without IncludeDetail: %q", got)
	}
	if !strings.Contains(got, "2 objects not listed. Use get_context to fetch a scoped listing.") {
		t.Errorf("hidden-object count line missing: %q", got)
	}
}

func TestBuildDigestNoHiddenLineForFramesOnly(t *testing.T) {
	frame := testFrame("f1", "Backlog", 0, 0, 400, 300)
	got := BuildDigest([]domain.Object{frame}, DigestOptions{Scope: domain.ScopeBoard})
	if strings.Contains(got, "not listed") {
		t.Errorf("frames are already listed, nothing is hidden: %q", got)
	}
}

func TestTextPreview(t *testing.T) {
	long := strings.Repeat("word ", 20)
	got := textPreview(long, 10)
	if got != "word word ..." {
		t.Errorf("preview = %q", got)
	}
	if textPreview("short", 10) != "short" {
		t.Errorf("short text must pass through")
	}
}

func TestEstimateTokens(t *testing.T) {
	if n := EstimateTokens("delete all notes on the board"); n <= 0 {
		t.Errorf("EstimateTokens = %d, want > 0", n)
	}
	long := strings.Repeat("canvas object ", 100)
	if EstimateTokens(long) <= EstimateTokens("canvas object") {
		t.Errorf("longer text should not estimate fewer tokens")
	}
}
