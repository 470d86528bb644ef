package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// Compiled argument schemas, shared across dispatchers. The catalog is
// static, so a compile failure is a programming error.
var (
	schemaOnce sync.Once
	argSchemas map[Op]*jsonschema.Schema
)

func compiledArgSchemas() map[Op]*jsonschema.Schema {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		argSchemas = make(map[Op]*jsonschema.Schema, len(opSchemas))
		for op, s := range opSchemas {
			schema, err := compiler.Compile([]byte(s.Parameters))
			if err != nil {
				panic(fmt.Sprintf("tool: schema for %s does not compile: %v", op, err))
			}
			argSchemas[op] = schema
		}
	})
	return argSchemas
}

// Dispatcher executes tool calls for one command against its arena and the
// canvas store. It implements domain.ToolRunner. Mutations write to the store
// first and mirror into the arena only on success, so the mirror never claims
// state the store rejected.
type Dispatcher struct {
	store  domain.CanvasStore
	arena  *Arena
	cursor BatchCursor
	logger *slog.Logger

	// mu guards the arena during concurrent batches. Only the four
	// parallel-safe ops ever run concurrently; everything else executes
	// exclusively, but all mirror writes take the lock anyway.
	mu sync.Mutex
}

// NewDispatcher builds a dispatcher for one command.
func NewDispatcher(store domain.CanvasStore, arena *Arena, logger *slog.Logger) *Dispatcher {
	compiledArgSchemas()
	return &Dispatcher{store: store, arena: arena, logger: logger}
}

// Arena exposes the mirror for context building after execution.
func (d *Dispatcher) Arena() *Arena { return d.arena }

// BoundsOf returns the union bounds of the given objects as the arena now
// sees them. IDs the arena no longer holds (deleted, or bulk markers like
// "all (12)") are ignored; found reports whether any object contributed.
func (d *Dispatcher) BoundsOf(ids []string) (domain.Rect, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var members []domain.Object
	for _, id := range ids {
		if o := d.arena.Object(id); o != nil {
			members = append(members, *o)
		}
	}
	if len(members) == 0 {
		return domain.Rect{}, false
	}
	return domain.BoundingRect(members), true
}

// Schemas returns the announced catalog, filtered to allowed when non-nil.
func (d *Dispatcher) Schemas(allowed []string) []domain.ToolSchema {
	return Catalog(allowed)
}

// ParallelSafe reports whether the named tool may run in a concurrent batch.
func (d *Dispatcher) ParallelSafe(name string) bool {
	op, ok := ParseOp(name)
	return ok && IsParallelSafe(op)
}

// Run executes one tool call. The result is never nil and Run never panics;
// a handler panic becomes a failed result so the surrounding loop survives.
func (d *Dispatcher) Run(ctx context.Context, call domain.ToolCall) (res *domain.ToolResult) {
	ctx, span := tracer.StartSpan(ctx, "tool."+call.Name,
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", "tool", call.Name, "panic", r)
			tracer.RecordError(span, fmt.Errorf("panic: %v", r))
			res = fail(call.ID, "internal error executing %s", call.Name)
		}
	}()

	op, ok := ParseOp(call.Name)
	if !ok {
		tracer.RecordError(span, domain.ErrToolNotFound)
		return fail(call.ID, "unknown tool %q", call.Name)
	}
	if bad := validateArgs(op, call); bad != nil {
		tracer.RecordError(span, domain.NewSubSystemError("tool", "Dispatcher.Run", domain.ErrInvalidInput, bad.Error))
		return bad
	}

	switch op {
	case OpCreateLeaf:
		res = d.createLeaf(ctx, call)
	case OpCreateFrame:
		res = d.createFrame(ctx, call)
	case OpMoveObject:
		res = d.moveObject(ctx, call)
	case OpResizeObject:
		res = d.resizeObject(ctx, call)
	case OpUpdateText:
		res = d.updateText(ctx, call)
	case OpChangeColor:
		res = d.changeColor(ctx, call)
	case OpAddToFrame:
		res = d.addToFrame(ctx, call)
	case OpRemoveFromFrame:
		res = d.removeFromFrame(ctx, call)
	case OpCreateConnector:
		res = d.createConnector(ctx, call)
	case OpBulkDelete:
		res = d.bulkDelete(ctx, call)
	case OpBulkCreate:
		res = d.bulkCreate(ctx, call)
	case OpArrangeObjects:
		res = d.arrangeObjects(ctx, call)
	case OpRearrangeFrame:
		res = d.rearrangeFrame(ctx, call)
	case OpGetContext:
		res = d.getContext(ctx, call)
	}

	if res.Success {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, fmt.Errorf("%s", res.Error))
		d.logger.Warn("tool call failed", "tool", call.Name, "error", res.Error)
	}
	return res
}

// validateArgs checks call arguments against the op's compiled schema.
// Returns a failure result on violation, nil when the arguments pass.
func validateArgs(op Op, call domain.ToolCall) *domain.ToolResult {
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var parsed any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fail(call.ID, "arguments are not valid JSON: %v", err)
	}
	result := compiledArgSchemas()[op].Validate(parsed)
	if !result.IsValid() {
		return fail(call.ID, "invalid arguments for %s: %s", op, result.Error())
	}
	return nil
}

// parseArgs unmarshals call arguments into P. Schema validation already ran,
// so a decode failure here means the param struct disagrees with the catalog.
func parseArgs[P any](call domain.ToolCall) (P, *domain.ToolResult) {
	var p P
	if len(call.Arguments) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(call.Arguments, &p); err != nil {
		return p, fail(call.ID, "invalid arguments: %v", err)
	}
	return p, nil
}

// fail builds a failure result.
func fail(callID, format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{
		ToolCallID: callID,
		Success:    false,
		Error:      fmt.Sprintf(format, args...),
	}
}

// lookup returns a copy of the mirrored object under lock.
func (d *Dispatcher) lookup(id string) (domain.Object, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.arena.objects[id]
	if !ok {
		return domain.Object{}, false
	}
	return *o, true
}

// mirror records a created or updated object in the arena under lock.
func (d *Dispatcher) mirror(o *domain.Object) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arena.Add(o)
}

// unmirror drops an object and its cascaded connectors from the arena.
func (d *Dispatcher) unmirror(objectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arena.Remove(objectID)
	d.arena.RemoveConnectorsFor(objectID)
}
