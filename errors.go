package eventmachine

import "fmt"

// ErrorCode enumerates the broad categories of failure. None of the
// typed errors below carries or returns an ErrorCode.
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeConfig
	ErrCodeAmbiguousState
	ErrCodeNoTransitionDefinition
	ErrCodeNoStateDefinition
	ErrCodeValidation
	ErrCodeValidationGuard
	ErrCodeMissingContext
	ErrCodeBehaviorNotFound
	ErrCodeMachineAlreadyRunning
	ErrCodeInvalidData
	ErrCodeArchiveConflict
)

// ConfigError reports a structurally invalid machine definition. Fatal
// for Define/DefineYAML.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %s", e.Reason)
	}
	return fmt.Sprintf("config error at %q: %s", e.Path, e.Reason)
}

func NewConfigError(path, reason string) *ConfigError {
	return &ConfigError{Path: path, Reason: reason}
}

// AmbiguousStateError reports that a partial state-id string matched more
// than one StateDefinition.
type AmbiguousStateError struct {
	Query   string
	Matches []string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("state reference %q is ambiguous, matches: %v", e.Query, e.Matches)
}

func NewAmbiguousStateError(query string, matches []string) *AmbiguousStateError {
	return &AmbiguousStateError{Query: query, Matches: matches}
}

// NoTransitionDefinitionError reports that neither the current state nor
// any ancestor defines a transition for the dispatched event.
type NoTransitionDefinitionError struct {
	StateID   string
	EventType string
}

func (e *NoTransitionDefinitionError) Error() string {
	return fmt.Sprintf("no transition defined for event %q from state %q (or any ancestor)", e.EventType, e.StateID)
}

func NewNoTransitionDefinitionError(stateID, eventType string) *NoTransitionDefinitionError {
	return &NoTransitionDefinitionError{StateID: stateID, EventType: eventType}
}

// NoStateDefinitionError reports that a transition target could not be
// resolved to an existing StateDefinition.
type NoStateDefinitionError struct {
	Reference string
}

func (e *NoStateDefinitionError) Error() string {
	return fmt.Sprintf("no state definition found for %q", e.Reference)
}

func NewNoStateDefinitionError(reference string) *NoStateDefinitionError {
	return &NoStateDefinitionError{Reference: reference}
}

// ValidationError reports that an event payload failed its declared
// schema. The caller-facing state is left unchanged.
type ValidationError struct {
	EventType string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event %q payload invalid at %q: %s", e.EventType, e.Field, e.Reason)
}

func NewValidationError(eventType, field, reason string) *ValidationError {
	return &ValidationError{EventType: eventType, Field: field, Reason: reason}
}

// ValidationGuardError is raised by a guard that both returns false and
// carries a diagnostic message (a "validation guard").
type ValidationGuardError struct {
	GuardName string
	Message   string
}

func (e *ValidationGuardError) Error() string {
	return fmt.Sprintf("guard %q rejected: %s", e.GuardName, e.Message)
}

func NewValidationGuardError(guardName, message string) *ValidationGuardError {
	return &ValidationGuardError{GuardName: guardName, Message: message}
}

// MissingContextError reports that a behavior's declared required context
// path is absent or type-mismatched.
type MissingContextError struct {
	Path string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("MissingContext(%s)", e.Path)
}

func NewMissingContextError(path string) *MissingContextError {
	return &MissingContextError{Path: path}
}

// BehaviorNotFoundError reports that the BehaviorRegistry has no
// registration for a requested kind+name.
type BehaviorNotFoundError struct {
	Kind string
	Name string
}

func (e *BehaviorNotFoundError) Error() string {
	return fmt.Sprintf("BehaviorNotFound(%s.%s)", e.Kind, e.Name)
}

func NewBehaviorNotFoundError(kind, name string) *BehaviorNotFoundError {
	return &BehaviorNotFoundError{Kind: kind, Name: name}
}

// MachineAlreadyRunningError reports that the single-writer lock for a
// machine instance could not be acquired.
type MachineAlreadyRunningError struct {
	RootEventID string
}

func (e *MachineAlreadyRunningError) Error() string {
	return fmt.Sprintf("machine %q is already running", e.RootEventID)
}

func NewMachineAlreadyRunningError(rootEventID string) *MachineAlreadyRunningError {
	return &MachineAlreadyRunningError{RootEventID: rootEventID}
}

// InvalidDataError reports that a stored blob could not be decompressed
// or parsed as JSON.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data: %s", e.Reason)
}

func NewInvalidDataError(reason string) *InvalidDataError {
	return &InvalidDataError{Reason: reason}
}

// ArchiveConflictError reports a duplicate archive attempt for a
// root_event_id that has already been archived.
type ArchiveConflictError struct {
	RootEventID string
}

func (e *ArchiveConflictError) Error() string {
	return fmt.Sprintf("archive already exists for root_event_id %q", e.RootEventID)
}

func NewArchiveConflictError(rootEventID string) *ArchiveConflictError {
	return &ArchiveConflictError{RootEventID: rootEventID}
}

// ActionError wraps a panic or returned error from an action (entry,
// exit or transition action) without losing the underlying cause. The
// engine returns it to the caller; it does not write a trace record for
// it.
type ActionError struct {
	Kind    string
	Name    string
	Cause   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Kind, e.Name, e.Cause)
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

func NewActionError(kind, name string, cause error) *ActionError {
	return &ActionError{Kind: kind, Name: name, Cause: cause}
}
