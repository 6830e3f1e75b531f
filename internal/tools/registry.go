// Package tools implements the tool registry and dispatch surface the
// Agent Loop calls into (spec.md §4.4).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumenforge/agentrt/pkg/models"
)

// MaxToolNameLength and MaxArgsSize bound a dispatch call to prevent
// resource exhaustion from a malicious or buggy caller.
const (
	MaxToolNameLength = 256
	MaxArgsSize       = 10 << 20
)

// ErrNotFound is returned (wrapped) when Execute is asked for an
// unregistered tool name.
var ErrNotFound = fmt.Errorf("tool not found")

// ErrInvalidArgument is returned (wrapped) when a required parameter
// is missing or an argument fails schema validation.
var ErrInvalidArgument = fmt.Errorf("invalid tool argument")

// Handler is a registered tool's implementation. args is the raw JSON
// object of call arguments after default-filling. A nil ToolContext is
// passed when the registry was not given one by the caller.
type Handler func(ctx context.Context, tc *models.ToolContext, args json.RawMessage) (string, error)

type entry struct {
	def     models.ToolDefinition
	handler Handler
	schema  *jsonschemav5.Schema
}

// Registry holds a name -> ToolDefinition/Handler map. Reads
// (Get/Execute lookup/export) run under a shared lock; writes
// (Register/Unregister) are exclusive, matching the teacher's
// ToolRegistry concurrency contract (spec.md §5: registry mutations
// are not expected during dispatch, concurrent reads must be safe).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{entries: make(map[string]*entry), log: logger.With("component", "tools.registry")}
}

// Register adds a tool built from a Go parameter struct: its JSON
// Schema is derived via invopop/jsonschema (the struct-based
// replacement for reflecting on a dynamic-language function
// signature); fields tagged jsonschema:"required" are required.
// RegisterRaw is the path for a caller-supplied schema (the path
// MCP-imported tools take). Registering a name that already exists
// replaces it.
func Register[T any](r *Registry, name, description string, handler Handler) error {
	var sample T
	raw, err := schemaFor(sample)
	if err != nil {
		return fmt.Errorf("derive schema for tool %q: %w", name, err)
	}
	params, err := paramsFromSchema(raw)
	if err != nil {
		return fmt.Errorf("derive parameters for tool %q: %w", name, err)
	}
	return r.RegisterRaw(models.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  params,
		RawSchema:   raw,
	}, handler)
}

// paramsFromSchema reads a top-level JSON Schema object's properties
// and required list into flat ToolParameters, so fillDefaults can
// apply the Go struct tag defaults invopop/jsonschema encoded into raw
// even for tools registered through the generic Register[T] path.
func paramsFromSchema(raw json.RawMessage) ([]models.ToolParameter, error) {
	var schema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
			Default     any    `json:"default"`
			Enum        []any  `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	params := make([]models.ToolParameter, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		params = append(params, models.ToolParameter{
			Name:        name,
			Type:        models.ParamType(prop.Type),
			Description: prop.Description,
			Required:    required[name],
			Default:     prop.Default,
			Enum:        prop.Enum,
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params, nil
}

// RegisterRaw registers a tool whose schema (def.RawSchema) is
// supplied directly, bypassing struct-based derivation. Used for
// MCP-imported tools that must preserve their source inputSchema
// verbatim (spec.md §4.7).
func (r *Registry) RegisterRaw(def models.ToolDefinition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	var compiled *jsonschemav5.Schema
	if len(def.RawSchema) > 0 {
		c, err := compileSchema(def.Name, def.RawSchema)
		if err != nil {
			return err
		}
		compiled = c
	} else {
		raw, err := schemaFromParameters(def.Parameters)
		if err != nil {
			return fmt.Errorf("build schema for tool %q: %w", def.Name, err)
		}
		def.RawSchema = raw
		compiled, err = compileSchema(def.Name, raw)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = &entry{def: def, handler: handler, schema: compiled}
	return nil
}

// Unregister removes a tool by name. A no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Get returns a tool's definition by name.
func (r *Registry) Get(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return models.ToolDefinition{}, false
	}
	return e.def, true
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ToJSONSchema exports every tool as {name, description, parameters}.
func (r *Registry) ToJSONSchema() []models.JSONSchemaTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.JSONSchemaTool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, models.JSONSchemaTool{
			Name:        e.def.Name,
			Description: e.def.Description,
			Parameters:  e.def.RawSchema,
		})
	}
	return out
}

// ToOpenAISchema exports every tool wrapped OpenAI-function-style.
func (r *Registry) ToOpenAISchema() []models.OpenAIFunctionTool {
	plain := r.ToJSONSchema()
	out := make([]models.OpenAIFunctionTool, 0, len(plain))
	for _, t := range plain {
		out = append(out, models.OpenAIFunctionTool{
			Type: "function",
			Function: models.OpenAIFunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// Execute dispatches name with args, a JSON object of call arguments.
// Missing optional parameters are filled with their declared default
// before validation; a missing required parameter or a schema
// violation fails with ErrInvalidArgument. tc may be nil.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, tc *models.ToolContext) (string, error) {
	if len(name) > MaxToolNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidArgument, MaxToolNameLength)
	}
	if len(args) > MaxArgsSize {
		return "", fmt.Errorf("%w: arguments exceed %d bytes", ErrInvalidArgument, MaxArgsSize)
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	filled, err := fillDefaults(e.def.Parameters, args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if e.schema != nil {
		var decoded any
		if len(filled) == 0 {
			decoded = map[string]any{}
		} else if err := json.Unmarshal(filled, &decoded); err != nil {
			return "", fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArgument, err)
		}
		if err := e.schema.Validate(decoded); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	r.log.Debug("dispatching tool", "tool", name)
	return e.handler(ctx, tc, filled)
}

func fillDefaults(params []models.ToolParameter, args json.RawMessage) (json.RawMessage, error) {
	if len(params) == 0 {
		if len(args) == 0 {
			return json.RawMessage("{}"), nil
		}
		return args, nil
	}

	var decoded map[string]any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	for _, p := range params {
		if _, present := decoded[p.Name]; present {
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required parameter %q", p.Name)
		}
		if p.Default != nil {
			decoded[p.Name] = p.Default
		}
	}

	filled, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("re-encode filled arguments: %w", err)
	}
	return filled, nil
}

func schemaFor(sample any) (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true, RequiredFromJSONSchemaTags: true}
	s := reflector.Reflect(sample)
	s.Version = ""
	return json.Marshal(s)
}

func schemaFromParameters(params []models.ToolParameter) (json.RawMessage, error) {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	obj := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		obj["required"] = required
	}
	return json.Marshal(obj)
}

var schemaCache sync.Map

func compileSchema(name string, raw json.RawMessage) (*jsonschemav5.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschemav5.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschemav5.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile schema for tool %q: %w", name, err)
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
