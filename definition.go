package eventmachine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// CompressionConfig mirrors the `compression.*` keys of spec.md §6's
// configuration schema.
type CompressionConfig struct {
	Enabled   bool
	Level     int
	Fields    []string
	Threshold int
}

func defaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Enabled:   false,
		Level:     6,
		Fields:    []string{"payload", "context", "meta"},
		Threshold: 100,
	}
}

// MachineDefinition is the immutable, validated result of Define/DefineYAML
// (spec.md §4.1): the resolved state tree, transition tables, and the
// behavior registry the engine consults during a send.
type MachineDefinition struct {
	ID            string
	Version       int
	Delimiter     string
	Root          *StateDefinition
	ContextSchema []FieldSchema
	InitialData   map[string]any
	Behaviors     *BehaviorRegistry
	ShouldPersist bool
	Compression   CompressionConfig

	byID map[string]*StateDefinition
}

var topLevelAllowedKeys = map[string]struct{}{
	"id": {}, "version": {}, "initial": {}, "context": {}, "states": {},
	"on": {}, "type": {}, "meta": {}, "entry": {}, "exit": {},
	"description": {}, "scenarios_enabled": {}, "should_persist": {},
	"delimiter": {}, "compression": {},
}

// Define builds a MachineDefinition from an already-decoded configuration
// map (spec.md §4.1). registry may be nil, in which case a fresh empty
// BehaviorRegistry is used.
func Define(config map[string]any, registry *BehaviorRegistry) (*MachineDefinition, error) {
	if registry == nil {
		registry = NewBehaviorRegistry()
	}

	id, _ := config["id"].(string)
	if id == "" {
		// a caller that omits "id" still gets a stable, unique machine
		// identity rather than an empty string leaking into every
		// EventRecord.machine_id this definition ever produces.
		id = uuid.NewString()
	}
	delim := "."
	if d, ok := config["delimiter"].(string); ok && d != "" {
		delim = d
	}

	version := 1
	if v, ok := config["version"]; ok {
		n, isNum := toFloat(v)
		if !isNum {
			return nil, NewConfigError("version", "must be a number")
		}
		version = int(n)
		if version <= 0 {
			version = 1
		}
	}

	comp := defaultCompressionConfig()
	if rawComp, ok := config["compression"]; ok {
		cm, ok := rawComp.(map[string]any)
		if !ok {
			return nil, NewConfigError("compression", "must be a mapping")
		}
		if v, ok := cm["enabled"].(bool); ok {
			comp.Enabled = v
		}
		if v, ok := toFloat(cm["level"]); ok {
			comp.Level = int(v)
		}
		if v, ok := toFloat(cm["threshold"]); ok {
			comp.Threshold = int(v)
		}
		if raw, ok := cm["fields"].([]any); ok {
			fields := make([]string, 0, len(raw))
			for _, f := range raw {
				if s, ok := f.(string); ok {
					fields = append(fields, s)
				}
			}
			comp.Fields = fields
		}
	}

	shouldPersist := true
	if v, ok := config["should_persist"].(bool); ok {
		shouldPersist = v
	}

	schema, initialData, err := parseContext(config["context"])
	if err != nil {
		return nil, err
	}

	root, err := buildState(id, id, nil, config, delim, 0)
	if err != nil {
		return nil, err
	}

	def := &MachineDefinition{
		ID:            id,
		Version:       version,
		Delimiter:     delim,
		Root:          root,
		ContextSchema: schema,
		InitialData:   initialData,
		Behaviors:     registry,
		ShouldPersist: shouldPersist,
		Compression:   comp,
	}
	def.indexByID()

	if err := validateTree(def.Root); err != nil {
		return nil, err
	}
	if err := validateTransitionTargets(def); err != nil {
		return nil, err
	}

	return def, nil
}

// DefineYAML decodes yamlBytes into a map[string]any and delegates to
// Define (spec.md §10.4).
func DefineYAML(yamlBytes []byte, registry *BehaviorRegistry) (*MachineDefinition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return nil, NewConfigError("", fmt.Sprintf("invalid yaml: %v", err))
	}
	return Define(normalizeYAMLMap(raw), registry)
}

// normalizeYAMLMap recursively converts map[any]any nodes (which
// gopkg.in/yaml.v3 never actually produces for map[string]any targets,
// but nested `any` fields decoded via interface{} do come back as
// map[string]any already) into the map[string]any shape the rest of the
// package expects, leaving other values untouched.
func normalizeYAMLMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return normalizeYAMLMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	default:
		return v
	}
}

func parseContext(raw any) ([]FieldSchema, map[string]any, error) {
	if raw == nil {
		return nil, map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, NewConfigError("context", "must be a mapping")
	}

	schemaRaw, hasSchema := m["schema"].([]any)
	if !hasSchema {
		return nil, m, nil
	}

	initial, _ := m["initial"].(map[string]any)
	if initial == nil {
		initial = map[string]any{}
	}

	var schema []FieldSchema
	for _, entryRaw := range schemaRaw {
		entry, ok := entryRaw.(map[string]any)
		if !ok {
			return nil, nil, NewConfigError("context.schema", "entry must be a mapping")
		}
		path, _ := entry["path"].(string)
		if path == "" {
			return nil, nil, NewConfigError("context.schema", "entry requires path")
		}
		fs := FieldSchema{Path: path}
		if req, ok := entry["required"].(bool); ok {
			fs.Required = req
		}
		if t, ok := entry["type"].(string); ok {
			fs.Type = parseFieldType(t)
		}
		if mn, ok := toFloat(entry["min"]); ok {
			fs.Min = &mn
		}
		if mx, ok := toFloat(entry["max"]); ok {
			fs.Max = &mx
		}
		if re, ok := entry["regex"].(string); ok {
			fs.Regex = re
		}
		schema = append(schema, fs)
	}
	return schema, initial, nil
}

func parseFieldType(s string) FieldType {
	switch s {
	case "string":
		return FieldString
	case "number":
		return FieldNumber
	case "bool", "boolean":
		return FieldBool
	case "map", "object":
		return FieldMap
	case "slice", "array", "list":
		return FieldSlice
	default:
		return FieldAny
	}
}

// buildState recursively parses one state config node (root or nested)
// into a StateDefinition, validating the allowed-keys and `on`-placement
// rules of spec.md §4.1.
func buildState(machineID, key string, parent *StateDefinition, config map[string]any, delim string, order int) (*StateDefinition, error) {
	if _, bad := config["@always"]; bad {
		return nil, NewConfigError(key, "transitions including @always must be defined under `on`")
	}
	for k := range config {
		if _, ok := topLevelAllowedKeys[k]; !ok {
			return nil, NewConfigError(key, fmt.Sprintf("unknown key %q", k))
		}
	}

	s := newStateDefinition(key, order)
	s.Parent = parent
	if parent == nil {
		s.Path = []string{key}
	} else {
		s.Path = append(append([]string{}, parent.Path...), key)
	}
	s.ID = strings.Join(s.Path, delim)
	s.Description, _ = config["description"].(string)
	if meta, ok := config["meta"].(map[string]any); ok {
		s.Meta = meta
	}

	s.Entry = parseBehaviorRefs(config["entry"])
	s.Exit = parseBehaviorRefs(config["exit"])

	statesRaw, hasStates := config["states"].(map[string]any)

	kindStr, _ := config["type"].(string)
	switch kindStr {
	case "compound":
		s.Kind = KindCompound
	case "parallel":
		s.Kind = KindParallel
	case "final":
		s.Kind = KindFinal
	case "atomic", "":
		if hasStates && len(statesRaw) > 0 {
			s.Kind = KindCompound
		} else {
			s.Kind = KindAtomic
		}
	default:
		return nil, NewConfigError(key, fmt.Sprintf("unknown type %q", kindStr))
	}

	if hasStates {
		keys := sortedKeys(statesRaw)
		for i, childKey := range keys {
			childCfgRaw, ok := statesRaw[childKey].(map[string]any)
			if !ok {
				return nil, NewConfigError(key+delim+childKey, "state config must be a mapping")
			}
			child, err := buildState(machineID, childKey, s, childCfgRaw, delim, i)
			if err != nil {
				return nil, err
			}
			s.Children[childKey] = child
			s.Order = append(s.Order, childKey)
		}
	}

	if initialRaw, ok := config["initial"].(string); ok {
		s.InitialChild = initialRaw
	} else if s.Kind == KindCompound && len(s.Order) > 0 {
		s.InitialChild = s.Order[0]
	}

	onRaw, hasOn := config["on"]
	if hasOn {
		onMap, ok := onRaw.(map[string]any)
		if !ok {
			return nil, NewConfigError(key, "`on` value must be a mapping")
		}
		for evt, val := range onMap {
			td, err := parseTransition(evt, val, key)
			if err != nil {
				return nil, err
			}
			s.Transitions[evt] = td
		}
	}

	return s, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseTransition(eventName string, val any, stateKey string) (*TransitionDefinition, error) {
	td := &TransitionDefinition{EventName: eventName}

	switch v := val.(type) {
	case nil:
		td.Forbidden = true
		return td, nil
	case string:
		td.Branches = []Branch{{TargetIsNull: false, targetRef: v}}
		return td, nil
	case []any:
		for _, branchRaw := range v {
			b, err := parseBranch(branchRaw, stateKey)
			if err != nil {
				return nil, err
			}
			td.Branches = append(td.Branches, b)
		}
		return td, nil
	case map[string]any:
		b, err := parseBranch(v, stateKey)
		if err != nil {
			return nil, err
		}
		td.Branches = []Branch{b}
		return td, nil
	default:
		return nil, NewConfigError(stateKey+".on."+eventName, "transition value must be a string, mapping, or null")
	}
}

var allowedBranchKeys = map[string]struct{}{
	"target": {}, "guards": {}, "actions": {}, "description": {}, "calculators": {},
}

func parseBranch(raw any, stateKey string) (Branch, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		if s, ok := raw.(string); ok {
			return Branch{targetRef: s}, nil
		}
		return Branch{}, NewConfigError(stateKey, "transition branch must be a mapping or string")
	}
	for k := range m {
		if _, ok := allowedBranchKeys[k]; !ok {
			return Branch{}, NewConfigError(stateKey, fmt.Sprintf("unknown transition key %q", k))
		}
	}

	b := Branch{}
	b.Description, _ = m["description"].(string)
	if t, ok := m["target"]; ok {
		if t == nil {
			b.TargetIsNull = true
		} else if s, ok := t.(string); ok {
			b.targetRef = s
		} else {
			return Branch{}, NewConfigError(stateKey, "target must be a string or null")
		}
	} else {
		b.TargetIsNull = true
	}
	b.Guards = parseBehaviorRefs(m["guards"])
	b.Actions = parseBehaviorRefs(m["actions"])
	b.Calculators = parseBehaviorRefs(m["calculators"])
	return b, nil
}

func parseBehaviorRefs(raw any) []BehaviorRef {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return []BehaviorRef{parseBehaviorRef(v)}
	case []any:
		out := make([]BehaviorRef, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, parseBehaviorRef(s))
			}
		}
		return out
	default:
		return nil
	}
}

// parseBehaviorRef splits a `name:arg1,arg2` reference into its name and
// argument array (spec.md §4.6).
func parseBehaviorRef(s string) BehaviorRef {
	name, argStr, hasArgs := strings.Cut(s, ":")
	if !hasArgs {
		return BehaviorRef{Name: name}
	}
	return BehaviorRef{Name: name, Args: strings.Split(argStr, ",")}
}

func (d *MachineDefinition) indexByID() {
	d.byID = map[string]*StateDefinition{}
	var walk func(*StateDefinition)
	walk = func(s *StateDefinition) {
		d.byID[s.ID] = s
		for _, c := range s.OrderedChildren() {
			walk(c)
		}
	}
	walk(d.Root)
}

// resolveStateByString resolves a possibly-partial state id ("a.b", ".b",
// "machine.a.b") to the unique matching StateDefinition (spec.md §4.1).
func (d *MachineDefinition) resolveStateByString(ref string) (*StateDefinition, error) {
	if s, ok := d.byID[ref]; ok {
		return s, nil
	}

	trimmed := strings.TrimPrefix(ref, d.Delimiter)
	var matches []*StateDefinition
	var matchIDs []string
	for id, s := range d.byID {
		if id == trimmed || strings.HasSuffix(id, d.Delimiter+trimmed) {
			matches = append(matches, s)
			matchIDs = append(matchIDs, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, NewNoStateDefinitionError(ref)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matchIDs)
		return nil, NewAmbiguousStateError(ref, matchIDs)
	}
}

// validateTransitionTargets walks every branch's targetRef string into a
// resolved *StateDefinition pointer. Run once, after the whole tree (and
// therefore every valid id) exists.
func validateTransitionTargets(d *MachineDefinition) error {
	var walk func(*StateDefinition) error
	walk = func(s *StateDefinition) error {
		for _, td := range s.Transitions {
			for i := range td.Branches {
				b := &td.Branches[i]
				if b.TargetIsNull || b.targetRef == "" {
					continue
				}
				target, err := d.resolveStateByString(b.targetRef)
				if err != nil {
					return err
				}
				b.Target = target
			}
		}
		for _, c := range s.OrderedChildren() {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(d.Root)
}

// validateTree checks the structural invariants of spec.md §3: FINAL
// states have no children/transitions/initial; PARALLEL states have only
// COMPOUND regions and no initial_child of their own; COMPOUND states
// declare an initial_child.
func validateTree(s *StateDefinition) error {
	switch s.Kind {
	case KindFinal:
		if len(s.Children) > 0 {
			return NewConfigError(s.ID, "final state must not declare children")
		}
		if len(s.Transitions) > 0 {
			return NewConfigError(s.ID, "final state must not declare transitions")
		}
		if s.InitialChild != "" {
			return NewConfigError(s.ID, "final state must not declare initial")
		}
	case KindParallel:
		if s.InitialChild != "" {
			return NewConfigError(s.ID, "parallel state must not declare initial")
		}
		if len(s.Children) == 0 {
			return NewConfigError(s.ID, "parallel state requires at least one region")
		}
		for _, c := range s.OrderedChildren() {
			if c.Kind != KindCompound {
				return NewConfigError(c.ID, "parallel region must be a compound state")
			}
			if c.InitialChild == "" {
				return NewConfigError(c.ID, "parallel region requires its own initial")
			}
		}
	case KindCompound:
		if s.InitialChild == "" {
			return NewConfigError(s.ID, "compound state requires initial")
		}
		if _, ok := s.Children[s.InitialChild]; !ok {
			return NewConfigError(s.ID, fmt.Sprintf("initial %q does not name a child", s.InitialChild))
		}
	}

	for _, c := range s.OrderedChildren() {
		if err := validateTree(c); err != nil {
			return err
		}
	}
	return nil
}
