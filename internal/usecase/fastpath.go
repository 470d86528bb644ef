package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// FastKind is the closed vocabulary of commands the fast path handles without
// an orchestration loop.
type FastKind string

const (
	FastDeleteAll    FastKind = "delete_all"
	FastDeleteByType FastKind = "delete_by_type"
	FastDeleteExcept FastKind = "delete_except"
	FastCreateNotes  FastKind = "create_notes"
	FastCreateNote   FastKind = "create_note"
	FastCreateShapes FastKind = "create_shapes"
	FastSummarize    FastKind = "summarize"
)

// FastMatch is one recognized fast-path command.
type FastMatch struct {
	Kind       FastKind
	Count      int
	ObjectType string // type word, may be the "shape" pseudo-type
	Color      string
	Topic      string
	Text       string
	Frame      string // target frame title
	Source     string
	Confidence float64
}

// Matched phrasings. All run case-insensitively against the original command
// so captured text keeps the user's casing.
var (
	fastDeleteAllRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:delete|remove|clear|erase|wipe)\s+(?:everything|all(?:\s+(?:objects|items))?|the\s+(?:whole\s+|entire\s+)?(?:board|canvas))$`)

	fastDeleteTypeRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:delete|remove|clear|erase|wipe)\s+(?:all\s+(?:the\s+)?|the\s+|every\s+)?([a-z ]+?)s?$`)

	fastDeleteExceptRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:delete|remove)\s+(?:all\s+(?:the\s+)?)?shapes\s+except\s+(?:the\s+)?([a-z]+?)s?$`)

	fastCreateNotesRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:add|create|make|put)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|a couple of|a few|a dozen)\s+(?:([a-z]+)\s+)?(?:sticky\s+)?notes(?:\s+(?:about|on|for|titled)\s+(.+))?$`)

	fastCreateNoteRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:add|create|make|put)\s+(?:a|an|one)\s+(?:([a-z]+)\s+)?(?:sticky\s+)?note\b(.*)$`)

	fastCreateShapesRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:add|create|make|draw|put)\s+(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|a couple of|a few)\s+(?:([a-z]+)\s+)?(rectangles?|squares?|boxes|box|circles?|diamonds?|lines?)$`)

	fastSummarizeRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:(?:summari[sz]e|describe)\s+(?:the\s+|this\s+|my\s+)?(?:board|canvas)|what(?:'s| is)\s+on\s+(?:the|this|my)\s+(?:board|canvas)|(?:give\s+me\s+)?an?\s+overview(?:\s+of\s+(?:the|this|my)\s+(?:board|canvas))?)$`)

	quotedTextRe = regexp.MustCompile(`(?i)["“”'‘’]([^"“”'‘’]+)["“”'‘’]`)
	frameRefRe   = regexp.MustCompile(`(?i)\b(?:in|into|to)\s+(?:the\s+)?(?:["“”]([^"“”]+)["“”]|'([^']+)'|([a-z0-9][a-z0-9 _-]*?))\s*(?:frame|column|section)?\s*$`)
	// Connectives between "note" and its quoted text, removed before the
	// leftover check.
	noteFillerRe = regexp.MustCompile(`(?i)\b(?:that says|that reads|saying|with(?:\s+the)?\s+text|titled|labell?ed)\b`)

	// Topics that are really spatial instructions must not become note text.
	spatialTopicRe = regexp.MustCompile(`(?i)^(?:the|this|that|my)\b|\b(?:left|right|top|bottom|center|middle|grid|row|column)\b`)
)

var wordCounts = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a couple of": 2, "a few": 3, "a dozen": 12,
}

// ParseFastPath recognizes one closed-vocabulary command. It returns nil on
// any ambiguity; the fast path never guesses.
func ParseFastPath(command string) *FastMatch {
	cmd := strings.TrimSpace(command)
	cmd = strings.TrimRight(cmd, ".!?")
	if cmd == "" {
		return nil
	}
	pattern := func(m FastMatch) *FastMatch {
		m.Source = domain.RouteSourcePattern
		m.Confidence = 1
		return &m
	}

	if fastSummarizeRe.MatchString(cmd) {
		return pattern(FastMatch{Kind: FastSummarize})
	}
	if fastDeleteAllRe.MatchString(cmd) {
		return pattern(FastMatch{Kind: FastDeleteAll})
	}
	if m := fastDeleteExceptRe.FindStringSubmatch(cmd); m != nil {
		if t, ok := typeFromWord(m[1]); ok && domain.IsShape(domain.ObjectType(t)) {
			return pattern(FastMatch{Kind: FastDeleteExcept, ObjectType: t})
		}
		return nil
	}
	if m := fastDeleteTypeRe.FindStringSubmatch(cmd); m != nil {
		if t, ok := typeFromWord(m[1]); ok {
			return pattern(FastMatch{Kind: FastDeleteByType, ObjectType: t})
		}
		return nil
	}
	if m := fastCreateNotesRe.FindStringSubmatch(cmd); m != nil {
		topic := strings.TrimSpace(m[3])
		if topic != "" && spatialTopicRe.MatchString(topic) {
			return nil
		}
		match := FastMatch{Kind: FastCreateNotes, Count: parseCount(m[1]), Topic: topic}
		if c := strings.ToLower(m[2]); c != "" && c != "sticky" {
			if _, ok := domain.Palette[c]; !ok {
				return nil
			}
			match.Color = c
		}
		return pattern(match)
	}
	if m := fastCreateNoteRe.FindStringSubmatch(cmd); m != nil {
		match := FastMatch{Kind: FastCreateNote, Count: 1}
		if c := strings.ToLower(m[1]); c != "" && c != "sticky" {
			if _, ok := domain.Palette[c]; !ok {
				return nil
			}
			match.Color = c
		}
		rest := m[2]
		if q := quotedTextRe.FindStringSubmatch(rest); q != nil {
			match.Text = strings.TrimSpace(q[1])
			rest = strings.Replace(rest, q[0], "", 1)
			rest = noteFillerRe.ReplaceAllString(rest, "")
		}
		rest = strings.TrimSpace(rest)
		if rest != "" {
			fm := frameRefRe.FindStringSubmatch(rest)
			if fm == nil {
				return nil
			}
			for _, g := range fm[1:] {
				if g != "" {
					match.Frame = strings.TrimSpace(g)
					break
				}
			}
			if leftover := strings.TrimSpace(strings.Replace(rest, fm[0], "", 1)); leftover != "" {
				return nil
			}
		}
		return pattern(match)
	}
	if m := fastCreateShapesRe.FindStringSubmatch(cmd); m != nil {
		t, ok := typeFromWord(m[3])
		if !ok || t == "shape" {
			return nil
		}
		match := FastMatch{Kind: FastCreateShapes, Count: parseCount(m[1]), ObjectType: t}
		if c := strings.ToLower(m[2]); c != "" {
			if _, ok := domain.Palette[c]; !ok {
				return nil
			}
			match.Color = c
		}
		return pattern(match)
	}
	return nil
}

// typeFromWord normalizes a spoken type word ("stickies", "boxes") to an
// object type name, or "shape" for the pseudo-type.
func typeFromWord(word string) (string, bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	w = strings.TrimSuffix(w, "s")
	switch w {
	case "note", "sticky note", "stickie", "sticky":
		return string(domain.TypeNote), true
	case "rectangle", "square", "box", "boxe":
		return string(domain.TypeRectangle), true
	case "circle":
		return string(domain.TypeCircle), true
	case "diamond":
		return string(domain.TypeDiamond), true
	case "line":
		return string(domain.TypeLine), true
	case "text", "label":
		return string(domain.TypeText), true
	case "frame":
		return string(domain.TypeFrame), true
	case "shape":
		return "shape", true
	}
	return "", false
}

func parseCount(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := wordCounts[s]; ok {
		return n
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 1
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 1
	}
	return n
}

// FastPath executes closed-vocabulary commands with direct tool calls and no
// orchestration loop, optionally backed by a single-call AI extractor for
// phrasings the patterns miss.
type FastPath struct {
	models        ModelRouter
	extractorOn   bool
	minConfidence float64
	timeout       time.Duration
	logger        *slog.Logger
}

// NewFastPath creates a fast path. The extractor is disabled unless
// extractorOn is set; minConfidence defaults to 0.8 and timeout to 5s.
func NewFastPath(models ModelRouter, extractorOn bool, minConfidence float64, timeout time.Duration, logger *slog.Logger) *FastPath {
	if minConfidence <= 0 {
		minConfidence = 0.8
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FastPath{
		models:        models,
		extractorOn:   extractorOn,
		minConfidence: minConfidence,
		timeout:       timeout,
		logger:        logger,
	}
}

// Run matches and executes the command. It returns nil whenever the command
// is not recognized or any execution step fails: a nil result always means
// "let the next path try", never partial success.
func (f *FastPath) Run(ctx context.Context, req domain.CommandRequest, runner domain.ToolRunner, objects []domain.Object, connectors []domain.Connector) *domain.ExecutionResult {
	match := ParseFastPath(req.Command)
	if match == nil && f.extractorOn {
		match = f.extract(ctx, req.Command)
	}
	if match == nil {
		return nil
	}

	ctx, span := tracer.StartSpan(ctx, "fastpath.run",
		trace.WithAttributes(tracer.StringAttr("fastpath.kind", string(match.Kind))))
	defer span.End()

	result := f.execute(ctx, match, req, runner, objects, connectors)
	if result == nil {
		tracer.RecordError(span, domain.ErrInvalidInput)
		return nil
	}
	result.ModelTier = domain.TierFastPath
	result.RouteSource = match.Source
	result.RouteConfidence = match.Confidence
	tracer.SetOK(span)
	return result
}

func (f *FastPath) execute(ctx context.Context, match *FastMatch, req domain.CommandRequest, runner domain.ToolRunner, objects []domain.Object, connectors []domain.Connector) *domain.ExecutionResult {
	switch match.Kind {
	case FastSummarize:
		digest := BuildDigest(objects, DigestOptions{
			Scope:          domain.ScopeBoard,
			IncludeDetail:  true,
			ConnectorCount: len(connectors),
		})
		return &domain.ExecutionResult{Success: true, Message: digest}

	case FastDeleteAll:
		res := f.call(ctx, runner, "bulk_delete", map[string]any{"mode": "all"})
		if !res.Success {
			return f.bail(match, res)
		}
		msg := fmt.Sprintf("Deleted all %d objects", len(objects))
		if len(connectors) > 0 {
			msg += fmt.Sprintf(" and %d connectors", len(connectors))
		}
		return &domain.ExecutionResult{Success: true, Message: msg + ".", DeletedIDs: res.ObjectIDs}

	case FastDeleteByType:
		res := f.call(ctx, runner, "bulk_delete", map[string]any{
			"mode": "by_type", "object_type": match.ObjectType,
		})
		if !res.Success {
			return f.bail(match, res)
		}
		return &domain.ExecutionResult{
			Success:    true,
			Message:    fmt.Sprintf("Deleted %d %s objects.", len(res.ObjectIDs), match.ObjectType),
			DeletedIDs: res.ObjectIDs,
		}

	case FastDeleteExcept:
		var deleted []string
		for _, t := range domain.ShapeTypes {
			if string(t) == match.ObjectType {
				continue
			}
			res := f.call(ctx, runner, "bulk_delete", map[string]any{
				"mode": "by_type", "object_type": string(t),
			})
			if !res.Success {
				return f.bail(match, res)
			}
			deleted = append(deleted, res.ObjectIDs...)
		}
		return &domain.ExecutionResult{
			Success:    true,
			Message:    fmt.Sprintf("Deleted %d shapes, kept the %ss.", len(deleted), match.ObjectType),
			DeletedIDs: deleted,
		}

	case FastCreateNotes:
		items := make([]map[string]any, 0, match.Count)
		for i := 1; i <= match.Count; i++ {
			item := map[string]any{"type": "note"}
			if match.Topic != "" {
				item["text"] = fmt.Sprintf("%s %d", match.Topic, i)
			}
			if match.Color != "" {
				item["color"] = match.Color
			}
			items = append(items, item)
		}
		res := f.call(ctx, runner, "bulk_create", map[string]any{"items": items})
		if !res.Success {
			return f.bail(match, res)
		}
		return &domain.ExecutionResult{
			Success:    true,
			Message:    fmt.Sprintf("Created %d notes.", len(res.ObjectIDs)),
			CreatedIDs: res.ObjectIDs,
		}

	case FastCreateNote:
		args := map[string]any{"type": "note"}
		if match.Text != "" {
			args["text"] = match.Text
		}
		if match.Color != "" {
			args["color"] = match.Color
		}
		if match.Frame != "" {
			frameID := frameIDByTitle(objects, match.Frame)
			if frameID == "" {
				return nil
			}
			args["frame_id"] = frameID
		}
		res := f.call(ctx, runner, "create_leaf", args)
		if !res.Success {
			return f.bail(match, res)
		}
		msg := "Created a note."
		if match.Frame != "" {
			msg = fmt.Sprintf("Created a note in %q.", match.Frame)
		}
		return &domain.ExecutionResult{Success: true, Message: msg, CreatedIDs: []string{res.ObjectID}}

	case FastCreateShapes:
		items := make([]map[string]any, 0, match.Count)
		for i := 0; i < match.Count; i++ {
			item := map[string]any{"type": match.ObjectType}
			if match.Color != "" {
				item["color"] = match.Color
			}
			items = append(items, item)
		}
		res := f.call(ctx, runner, "bulk_create", map[string]any{"items": items})
		if !res.Success {
			return f.bail(match, res)
		}
		return &domain.ExecutionResult{
			Success:    true,
			Message:    fmt.Sprintf("Created %d %ss.", len(res.ObjectIDs), match.ObjectType),
			CreatedIDs: res.ObjectIDs,
		}
	}
	return nil
}

func (f *FastPath) call(ctx context.Context, runner domain.ToolRunner, name string, args map[string]any) *domain.ToolResult {
	raw, _ := json.Marshal(args)
	return runner.Run(ctx, domain.ToolCall{ID: "fastpath", Name: name, Arguments: raw})
}

// bail logs the failed step and abandons the fast path entirely. Partial
// fast-path results are never surfaced.
func (f *FastPath) bail(match *FastMatch, res *domain.ToolResult) *domain.ExecutionResult {
	f.logger.Debug("fast path abandoned", "kind", match.Kind, "error", res.Error)
	return nil
}

func frameIDByTitle(objects []domain.Object, title string) string {
	for i := range objects {
		if objects[i].IsFrame() && strings.EqualFold(strings.TrimSpace(objects[i].Text), strings.TrimSpace(title)) {
			return objects[i].ID
		}
	}
	return ""
}

// extractorReply is the JSON shape the extractor call must return.
type extractorReply struct {
	Kind       string  `json:"kind"`
	Count      int     `json:"count"`
	Color      string  `json:"color"`
	ObjectType string  `json:"objectType"`
	Topic      string  `json:"topic"`
	Frame      string  `json:"frame"`
	Confidence float64 `json:"confidence"`
}

var extractorKinds = map[string]FastKind{
	string(FastDeleteAll):    FastDeleteAll,
	string(FastDeleteByType): FastDeleteByType,
	string(FastDeleteExcept): FastDeleteExcept,
	string(FastCreateNotes):  FastCreateNotes,
	string(FastCreateNote):   FastCreateNote,
	string(FastCreateShapes): FastCreateShapes,
	string(FastSummarize):    FastSummarize,
}

// extract asks the fast tier to classify the command into the closed
// vocabulary. Every failure mode is silent: the extractor either returns a
// confident, fully validated match or nothing.
func (f *FastPath) extract(ctx context.Context, command string) *FastMatch {
	provider, model, err := f.models.Route(domain.TierFast)
	if err != nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := provider.Chat(callCtx, domain.ChatRequest{
		Model: model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: extractorSystemPrompt},
			{Role: domain.RoleUser, Content: extractorUserPrompt(command)},
		},
		ResponseFormat: domain.ResponseFormatJSON,
		MaxTokens:      200,
		Temperature:    0,
	})
	if err != nil {
		f.logger.Debug("extractor call failed", "error", err)
		return nil
	}

	var reply extractorReply
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Message.Content)), &reply); err != nil {
		f.logger.Debug("extractor reply unparseable", "error", err)
		return nil
	}
	if reply.Confidence < f.minConfidence {
		f.logger.Debug("extractor below confidence", "kind", reply.Kind, "confidence", reply.Confidence)
		return nil
	}
	kind, ok := extractorKinds[reply.Kind]
	if !ok {
		return nil
	}

	match := &FastMatch{
		Kind:       kind,
		Count:      reply.Count,
		Topic:      strings.TrimSpace(reply.Topic),
		Frame:      strings.TrimSpace(reply.Frame),
		Source:     domain.RouteSourceExtractor,
		Confidence: reply.Confidence,
	}
	if match.Count <= 0 {
		match.Count = 1
	}
	if reply.Color != "" {
		c := strings.ToLower(strings.TrimSpace(reply.Color))
		if _, ok := domain.Palette[c]; !ok {
			return nil
		}
		match.Color = c
	}
	if reply.ObjectType != "" {
		t, ok := typeFromWord(reply.ObjectType)
		if !ok {
			return nil
		}
		match.ObjectType = t
	}
	switch kind {
	case FastDeleteByType, FastCreateShapes, FastDeleteExcept:
		if match.ObjectType == "" {
			return nil
		}
	case FastCreateNote:
		// The extractor reports note text under topic.
		match.Text, match.Topic = match.Topic, ""
	}
	return match
}
