package usecase

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"boardpilot/internal/domain"
)

// Digest bounds. Boundedness comes from the detail cap, never from the token
// estimate, which is observability only.
const (
	DefaultMaxDetailObjects = 40
	digestViewportMargin    = 200.0
	digestPreviewRunes      = 40
)

// emptyCanvasDigest is the exact digest for a canvas with no objects. Model
// prompts key off this sentence, so it must stay stable.
const emptyCanvasDigest = "The canvas is empty. No objects exist yet."

// digestTypeOrder fixes the type listing order so identical canvases always
// produce identical digests.
var digestTypeOrder = []domain.ObjectType{
	domain.TypeNote, domain.TypeRectangle, domain.TypeCircle, domain.TypeDiamond,
	domain.TypeLine, domain.TypeText, domain.TypeFrame,
}

// DigestOptions controls how much canvas detail a digest includes.
type DigestOptions struct {
	Scope          domain.ContextScope
	Viewport       domain.Viewport
	SelectedIDs    []string
	ConnectorCount int
	// IncludeDetail adds per-object lines beyond the summary and frame list.
	IncludeDetail bool
	// MaxDetailObjects caps the per-object lines; 0 means the default of 40.
	MaxDetailObjects int
}

// BuildDigest renders a compact, deterministic text summary of the canvas for
// model prompts. It is a pure function: same inputs, same string. The summary
// header and the frame list are always present; per-object detail is bounded
// by MaxDetailObjects with the scope choosing the candidate set.
func BuildDigest(objects []domain.Object, opts DigestOptions) string {
	if len(objects) == 0 {
		return emptyCanvasDigest
	}
	if opts.MaxDetailObjects <= 0 {
		opts.MaxDetailObjects = DefaultMaxDetailObjects
	}

	var b strings.Builder
	writeDigestHeader(&b, objects, opts.ConnectorCount)
	frameTitles := writeDigestFrames(&b, objects)

	if !opts.IncludeDetail {
		hidden := 0
		for _, o := range objects {
			if !o.IsFrame() {
				hidden++
			}
		}
		if hidden > 0 {
			fmt.Fprintf(&b, "%d objects not listed. Use get_context to fetch a scoped listing.\n", hidden)
		}
		return b.String()
	}

	detail := digestDetailSet(objects, opts)
	if len(detail) == 0 {
		return b.String()
	}

	switch opts.Scope {
	case domain.ScopeSelected:
		b.WriteString("Objects (selected):\n")
	case domain.ScopeViewport:
		b.WriteString("Objects (viewport):\n")
	default:
		b.WriteString("Objects:\n")
	}

	shown := detail
	if len(shown) > opts.MaxDetailObjects {
		shown = shown[:opts.MaxDetailObjects]
	}
	for _, o := range shown {
		writeObjectLine(&b, o, frameTitles)
	}
	if extra := len(detail) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "…and %d more\n", extra)
	}
	return b.String()
}

func writeDigestHeader(b *strings.Builder, objects []domain.Object, connectorCount int) {
	counts := make(map[domain.ObjectType]int)
	for _, o := range objects {
		counts[o.Type]++
	}
	parts := make([]string, 0, len(counts))
	for _, t := range digestTypeOrder {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, pluralType(t, n)))
		}
	}
	fmt.Fprintf(b, "Canvas: %d objects (%s)", len(objects), strings.Join(parts, ", "))
	if connectorCount > 0 {
		fmt.Fprintf(b, ", %d connectors", connectorCount)
	}
	b.WriteString(".\n")
}

// writeDigestFrames emits one line per frame and returns the frame id → title
// map used to annotate child object lines.
func writeDigestFrames(b *strings.Builder, objects []domain.Object) map[string]string {
	children := make(map[string]int)
	for _, o := range objects {
		if o.ParentID != "" {
			children[o.ParentID]++
		}
	}

	titles := make(map[string]string)
	wroteHeader := false
	for _, o := range objects {
		if !o.IsFrame() {
			continue
		}
		if !wroteHeader {
			b.WriteString("Frames:\n")
			wroteHeader = true
		}
		title := o.Text
		if title == "" {
			title = "(untitled)"
		}
		titles[o.ID] = title
		fmt.Fprintf(b, "- [%s] %q at (%d,%d) %dx%d, %d children\n",
			o.ID, title, roundCoord(o.X), roundCoord(o.Y),
			roundCoord(o.Width), roundCoord(o.Height), children[o.ID])
	}
	return titles
}

// digestDetailSet picks the non-frame objects the scope considers relevant,
// preserving input order.
func digestDetailSet(objects []domain.Object, opts DigestOptions) []domain.Object {
	var detail []domain.Object
	switch opts.Scope {
	case domain.ScopeSelected:
		selected := make(map[string]bool, len(opts.SelectedIDs))
		for _, id := range opts.SelectedIDs {
			selected[id] = true
		}
		selectedFrames := make(map[string]bool)
		for _, o := range objects {
			if o.IsFrame() && selected[o.ID] {
				selectedFrames[o.ID] = true
			}
		}
		for _, o := range objects {
			if o.IsFrame() {
				continue
			}
			if selected[o.ID] || selectedFrames[o.ParentID] {
				detail = append(detail, o)
			}
		}
	case domain.ScopeViewport:
		region := opts.Viewport.Expand(digestViewportMargin)
		for _, o := range objects {
			if o.IsFrame() {
				continue
			}
			if region.Intersects(o.Bounds()) {
				detail = append(detail, o)
			}
		}
	default:
		for _, o := range objects {
			if !o.IsFrame() {
				detail = append(detail, o)
			}
		}
	}
	return detail
}

func writeObjectLine(b *strings.Builder, o domain.Object, frameTitles map[string]string) {
	fmt.Fprintf(b, "- [%s] %s", o.ID, o.Type)
	if o.Text != "" {
		fmt.Fprintf(b, " %q", textPreview(o.Text, digestPreviewRunes))
	}
	fmt.Fprintf(b, " at (%d,%d) %dx%d", roundCoord(o.X), roundCoord(o.Y),
		roundCoord(o.Width), roundCoord(o.Height))
	if o.Color != "" {
		b.WriteString(" " + o.Color)
	}
	if title, ok := frameTitles[o.ParentID]; ok {
		fmt.Fprintf(b, " in %q", title)
	}
	b.WriteString("\n")
}

func roundCoord(v float64) int { return int(math.Round(v)) }

// textPreview flattens and truncates text to max runes for single-line use.
func textPreview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func pluralType(t domain.ObjectType, n int) string {
	if n == 1 {
		return string(t)
	}
	return string(t) + "s"
}

var (
	tokenEncodingOnce sync.Once
	tokenEncoding     *tiktoken.Tiktoken
)

// EstimateTokens approximates how many model tokens s costs, using the
// cl100k_base encoding when it loads and a length heuristic otherwise. The
// estimate feeds logs and traces only; it never changes digest content.
func EstimateTokens(s string) int {
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoding = enc
		}
	})
	if tokenEncoding == nil {
		return len(s) / 4
	}
	return len(tokenEncoding.Encode(s, nil, nil))
}
