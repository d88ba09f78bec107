package eventmachine

// Observer receives notifications as the engine processes events. It is
// not part of spec.md's EXTERNAL INTERFACES proper, but ports the
// teacher's Observer contract (observer.go) onto the new EventRecord
// trace so logging/metrics can be attached without coupling the engine
// to either (spec.md §12 "SUPPLEMENTED FEATURES").
//
// Every method has a no-op default via BaseObserver; implementers embed
// it and override only what they need, exactly as the teacher's
// BaseObserver does.
type Observer interface {
	OnTransition(rec EventRecord)
	OnStateEnter(rec EventRecord)
	OnStateExit(rec EventRecord)
	OnGuardEvaluation(rec EventRecord, passed bool)
	OnEventRejected(rootEventID string, eventType string, err error)
	OnError(rootEventID string, err error)
}

// ExtendedObserver additionally hears about action execution and
// machine lifecycle, mirroring the teacher's ExtendedObserver split.
type ExtendedObserver interface {
	Observer
	OnActionExecution(rec EventRecord)
	OnMachineStarted(rootEventID string)
	OnMachineStopped(rootEventID string)
}

// BaseObserver is an embeddable no-op implementation of ExtendedObserver.
type BaseObserver struct{}

func (BaseObserver) OnTransition(EventRecord)             {}
func (BaseObserver) OnStateEnter(EventRecord)              {}
func (BaseObserver) OnStateExit(EventRecord)               {}
func (BaseObserver) OnGuardEvaluation(EventRecord, bool)   {}
func (BaseObserver) OnEventRejected(string, string, error) {}
func (BaseObserver) OnError(string, error)                 {}
func (BaseObserver) OnActionExecution(EventRecord)         {}
func (BaseObserver) OnMachineStarted(string)               {}
func (BaseObserver) OnMachineStopped(string)               {}

// ObserverManager fans a single notification out to every registered
// Observer, recovering from panics in any one observer so a bad
// third-party Observer cannot take down the engine — the teacher's
// ObserverManager does exactly this in observer.go.
type ObserverManager struct {
	observers []Observer
}

// NewObserverManager returns a manager with no observers registered.
func NewObserverManager() *ObserverManager {
	return &ObserverManager{}
}

// Register adds obs to the fan-out list.
func (m *ObserverManager) Register(obs Observer) {
	m.observers = append(m.observers, obs)
}

func (m *ObserverManager) notify(fn func(Observer)) {
	for _, obs := range m.observers {
		m.safeNotify(obs, fn)
	}
}

func (m *ObserverManager) safeNotify(obs Observer, fn func(Observer)) {
	defer func() {
		_ = recover()
	}()
	fn(obs)
}

func (m *ObserverManager) NotifyTransition(rec EventRecord) {
	m.notify(func(o Observer) { o.OnTransition(rec) })
}

func (m *ObserverManager) NotifyStateEnter(rec EventRecord) {
	m.notify(func(o Observer) { o.OnStateEnter(rec) })
}

func (m *ObserverManager) NotifyStateExit(rec EventRecord) {
	m.notify(func(o Observer) { o.OnStateExit(rec) })
}

func (m *ObserverManager) NotifyGuardEvaluation(rec EventRecord, passed bool) {
	m.notify(func(o Observer) { o.OnGuardEvaluation(rec, passed) })
}

func (m *ObserverManager) NotifyEventRejected(rootEventID, eventType string, err error) {
	m.notify(func(o Observer) { o.OnEventRejected(rootEventID, eventType, err) })
}

func (m *ObserverManager) NotifyError(rootEventID string, err error) {
	m.notify(func(o Observer) { o.OnError(rootEventID, err) })
}

func (m *ObserverManager) NotifyActionExecution(rec EventRecord) {
	m.notify(func(o Observer) {
		if ext, ok := o.(ExtendedObserver); ok {
			ext.OnActionExecution(rec)
		}
	})
}

func (m *ObserverManager) NotifyMachineStarted(rootEventID string) {
	m.notify(func(o Observer) {
		if ext, ok := o.(ExtendedObserver); ok {
			ext.OnMachineStarted(rootEventID)
		}
	})
}

func (m *ObserverManager) NotifyMachineStopped(rootEventID string) {
	m.notify(func(o Observer) {
		if ext, ok := o.(ExtendedObserver); ok {
			ext.OnMachineStopped(rootEventID)
		}
	})
}
