package eventmachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	BaseObserver
	transitions []EventRecord
	entered     []EventRecord
	rejected    int
	started     []string
}

func (o *recordingObserver) OnTransition(rec EventRecord)  { o.transitions = append(o.transitions, rec) }
func (o *recordingObserver) OnStateEnter(rec EventRecord)  { o.entered = append(o.entered, rec) }
func (o *recordingObserver) OnEventRejected(string, string, error) { o.rejected++ }
func (o *recordingObserver) OnMachineStarted(rootEventID string) {
	o.started = append(o.started, rootEventID)
}

type panickingObserver struct {
	BaseObserver
}

func (panickingObserver) OnTransition(EventRecord) { panic("boom") }

func TestObserverManager_NotifyFansOutToAllObservers(t *testing.T) {
	m := NewObserverManager()
	a := &recordingObserver{}
	b := &recordingObserver{}
	m.Register(a)
	m.Register(b)

	m.NotifyTransition(EventRecord{Type: "X"})

	require.Len(t, a.transitions, 1)
	require.Len(t, b.transitions, 1)
}

func TestObserverManager_PanicInOneObserverDoesNotStopOthers(t *testing.T) {
	m := NewObserverManager()
	m.Register(panickingObserver{})
	recorder := &recordingObserver{}
	m.Register(recorder)

	require.NotPanics(t, func() {
		m.NotifyTransition(EventRecord{Type: "X"})
	})
	require.Len(t, recorder.transitions, 1)
}

func TestObserverManager_ExtendedOnlyFiresForExtendedObservers(t *testing.T) {
	m := NewObserverManager()
	recorder := &recordingObserver{}
	m.Register(recorder)
	m.Register(struct{ Observer }{BaseObserver{}}) // satisfies Observer but not ExtendedObserver

	m.NotifyMachineStarted("root-1")
	require.Equal(t, []string{"root-1"}, recorder.started)
}

func TestObserverManager_WiredIntoEngineOnStart(t *testing.T) {
	def, err := Define(trafficLightConfig(), nil)
	require.NoError(t, err)

	engine := NewTransitionEngine(def)
	recorder := &recordingObserver{}
	engine.Observers.Register(recorder)

	log := NewLog()
	_, err = engine.Start(log, "root-obs")
	require.NoError(t, err)

	require.NotEmpty(t, recorder.started)
	require.NotEmpty(t, recorder.entered)
}
