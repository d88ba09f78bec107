package eventmachine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// FieldType is the declared type of a schema-bound context field
// (spec.md §4.4 "Schema-bound context").
type FieldType int

const (
	FieldAny FieldType = iota
	FieldString
	FieldNumber
	FieldBool
	FieldMap
	FieldSlice
)

// FieldSchema describes the validation rules for one dot-path entry in
// a ContextManager's optional schema.
type FieldSchema struct {
	Path     string
	Type     FieldType
	Required bool
	Min      *float64
	Max      *float64
	Regex    string
}

// ContextManager is the typed key/value store described in spec.md §4.4:
// a dotted-path addressable mapping, an optional schema, and a dirty set
// tracking which paths were written since the last snapshot so only
// deltas need to be persisted (§4.4 "Delta extraction").
//
// It follows the teacher's StateMachineContext shape (RWMutex-guarded
// map, WithValue/Fork copy-on-write) generalized from a flat map to a
// dot-path tree.
type ContextManager struct {
	mu     sync.RWMutex
	data   map[string]any
	schema []FieldSchema
	dirty  map[string]struct{}
}

// NewContextManager builds a ContextManager from an initial mapping
// (decoded JSON/YAML) and an optional schema.
func NewContextManager(initial map[string]any, schema []FieldSchema) *ContextManager {
	data := initial
	if data == nil {
		data = map[string]any{}
	} else {
		data = deepCopyMap(data)
	}
	return &ContextManager{
		data:   data,
		schema: schema,
		dirty:  map[string]struct{}{},
	}
}

// Get navigates a dot-path (`a.b.0.c`) through maps and ordered slices,
// returning the value and whether it was found. Reads are served via
// gjson over a JSON re-encoding of the tree, matching how the teacher's
// pack (r3e-network-service_layer) reads dot-paths out of JSON-shaped
// documents.
func (c *ContextManager) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(path)
}

func (c *ContextManager) getLocked(path string) (any, bool) {
	raw, err := json.Marshal(c.data)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, gjsonPath(path))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// gjsonPath rewrites a dotted path so purely-numeric segments address
// array elements the way gjson expects (`a.0.c` already works, kept as a
// pass-through; this exists so future delimiter changes have one place
// to adjust).
func gjsonPath(path string) string {
	return path
}

// Has reports whether path exists. If typ is FieldAny it only checks
// presence; otherwise it also checks the runtime type matches.
func (c *ContextManager) Has(path string, typ FieldType) bool {
	v, ok := c.Get(path)
	if !ok {
		return false
	}
	if typ == FieldAny {
		return true
	}
	return valueMatchesType(v, typ)
}

// Set writes value at path, creating intermediate maps as needed, and
// marks the path dirty for the next delta snapshot.
func (c *ContextManager) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := setDotPath(c.data, splitPath(path), value); err != nil {
		return err
	}
	c.dirty[path] = struct{}{}
	return nil
}

// Remove deletes the value at path, if present, and marks it dirty.
func (c *ContextManager) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removeDotPath(c.data, splitPath(path))
	c.dirty[path] = struct{}{}
}

// ToMapping returns a deep copy of the entire context tree.
func (c *ContextManager) ToMapping() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopyMap(c.data)
}

// Delta returns the subset of the current tree rooted at each dirty
// path, keyed by path, and does NOT clear the dirty set (callers clear
// explicitly via ClearDirty once persistence of the delta is committed).
func (c *ContextManager) Delta() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := map[string]any{}
	for _, p := range paths {
		if v, ok := c.getLocked(p); ok {
			out[p] = v
		} else {
			out[p] = nil
		}
	}
	return out
}

// ClearDirty empties the dirty set, typically called right after a
// commit has durably stored the delta returned by Delta.
func (c *ContextManager) ClearDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = map[string]struct{}{}
}

// ApplyDelta folds a previously-extracted delta (as returned by Delta)
// back into the tree; a nil value removes its path. Nothing in this
// package calls it: RestoreActor rebuilds the Context by replaying the
// log's external events, and the engine does not store deltas in
// EventRecord.Context.
func (c *ContextManager) ApplyDelta(delta map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, v := range delta {
		if v == nil {
			removeDotPath(c.data, splitPath(path))
			continue
		}
		_ = setDotPath(c.data, splitPath(path), v)
	}
}

// Fork returns an independent copy of this ContextManager: a new map, a
// copy of the schema, and an empty dirty set — mirroring the teacher's
// copy-on-write StateMachineContext.Fork.
func (c *ContextManager) Fork() *ContextManager {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &ContextManager{
		data:   deepCopyMap(c.data),
		schema: append([]FieldSchema(nil), c.schema...),
		dirty:  map[string]struct{}{},
	}
}

// Merge replaces c's tree with trial's and folds every path trial marked
// dirty into c's own dirty set — used to fold a trial Context's calculator
// mutations back into the live Context once the branch that produced the
// trial is selected (spec.md §4.2.3). Mutations of an abandoned trial are
// simply never merged and fall out of scope with it.
func (c *ContextManager) Merge(trial *ContextManager) {
	trial.mu.RLock()
	data := deepCopyMap(trial.data)
	dirty := make([]string, 0, len(trial.dirty))
	for p := range trial.dirty {
		dirty = append(dirty, p)
	}
	trial.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	for _, p := range dirty {
		c.dirty[p] = struct{}{}
	}
}

// SelfValidate runs every schema validator against the current tree and
// returns the first violation as a ValidationError, or nil.
func (c *ContextManager) SelfValidate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range c.schema {
		v, ok := c.getLocked(f.Path)
		if !ok {
			if f.Required {
				return NewValidationError("", f.Path, "required field missing")
			}
			continue
		}
		if f.Type != FieldAny && !valueMatchesType(v, f.Type) {
			return NewValidationError("", f.Path, fmt.Sprintf("expected type %v", f.Type))
		}
		if num, isNum := toFloat(v); isNum {
			if f.Min != nil && num < *f.Min {
				return NewValidationError("", f.Path, "below minimum")
			}
			if f.Max != nil && num > *f.Max {
				return NewValidationError("", f.Path, "above maximum")
			}
		}
		if f.Regex != "" {
			if s, isStr := v.(string); isStr {
				re, err := regexp.Compile(f.Regex)
				if err != nil || !re.MatchString(s) {
					return NewValidationError("", f.Path, "does not match pattern")
				}
			}
		}
	}
	return nil
}

// MissingRequired returns the first required context path declared by
// required that is absent or type-mismatched in this context, following
// spec.md §4.4 "hasMissingContext".
func (c *ContextManager) MissingRequired(required []FieldSchema) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range required {
		v, ok := c.getLocked(f.Path)
		if !ok {
			return f.Path, true
		}
		if f.Type != FieldAny && !valueMatchesType(v, f.Type) {
			return f.Path, true
		}
	}
	return "", false
}

func valueMatchesType(v any, typ FieldType) bool {
	switch typ {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		_, ok := toFloat(v)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldMap:
		_, ok := v.(map[string]any)
		return ok
	case FieldSlice:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// setDotPath writes value at the path described by segs, descending
// through maps and (numeric-index) slices, creating intermediate maps
// for missing segments.
func setDotPath(root map[string]any, segs []string, value any) error {
	if len(segs) == 0 {
		return NewInvalidDataError("empty path")
	}
	m := root
	for i := 0; i < len(segs)-1; i++ {
		seg := segs[i]
		next, ok := m[seg]
		if !ok {
			nm := map[string]any{}
			m[seg] = nm
			m = nm
			continue
		}
		switch nv := next.(type) {
		case map[string]any:
			m = nv
		case []any:
			idx, err := strconv.Atoi(segs[i+1])
			if err != nil || idx < 0 || idx >= len(nv) {
				return NewInvalidDataError(fmt.Sprintf("cannot navigate %q into slice", seg))
			}
			if i+1 == len(segs)-1 {
				nv[idx] = value
				return nil
			}
			elem, ok := nv[idx].(map[string]any)
			if !ok {
				return NewInvalidDataError(fmt.Sprintf("slice element at %q is not a map", seg))
			}
			m = elem
			i++
		default:
			return NewInvalidDataError(fmt.Sprintf("cannot descend through scalar at %q", seg))
		}
	}
	m[segs[len(segs)-1]] = value
	return nil
}

func removeDotPath(root map[string]any, segs []string) {
	if len(segs) == 0 {
		return
	}
	m := root
	for i := 0; i < len(segs)-1; i++ {
		next, ok := m[segs[i]]
		if !ok {
			return
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = nm
	}
	delete(m, segs[len(segs)-1])
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
