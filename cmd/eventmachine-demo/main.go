// Command eventmachine-demo walks through end-to-end scenarios S1-S5 of
// spec.md §8 against the real engine, in the narrative style of the
// teacher's examples/ programs (each scenario prints its own banner and
// then what its steps changed: the active leaves, or in S2 the counter
// value).
package main

import (
	"fmt"

	eventmachine "github.com/tarfin-labs/event-machine"
)

type printObserver struct {
	eventmachine.BaseObserver
}

func (printObserver) OnStateEnter(rec eventmachine.EventRecord) {
	fmt.Printf("  entered %v\n", rec.Type)
}

func main() {
	fmt.Println("=== S1: Traffic light ===")
	trafficLight()

	fmt.Println("\n=== S2: Guarded counter ===")
	guardedCounter()

	fmt.Println("\n=== S3: @always routing ===")
	alwaysRouting()

	fmt.Println("\n=== S4: Forbidden transition overrides ancestor ===")
	forbiddenOverride()

	fmt.Println("\n=== S5: Raised events ===")
	raisedEvents()
}

func mustDefine(config map[string]any, reg *eventmachine.BehaviorRegistry) *eventmachine.MachineDefinition {
	def, err := eventmachine.Define(config, reg)
	if err != nil {
		panic(err)
	}
	return def
}

func trafficLight() {
	config := map[string]any{
		"id":      "trafficLight",
		"initial": "green",
		"states": map[string]any{
			"green":  map[string]any{"on": map[string]any{"NEXT": "yellow"}},
			"yellow": map[string]any{"on": map[string]any{"NEXT": "red"}},
			"red":    map[string]any{},
		},
	}
	def := mustDefine(config, nil)
	engine := eventmachine.NewTransitionEngine(def)
	engine.Observers.Register(printObserver{})

	log := eventmachine.NewLog()
	rootID := "demo-s1"
	st, err := engine.Start(log, rootID)
	if err != nil {
		panic(err)
	}
	fmt.Println("initial:", st.ActiveLeaves)

	for i := 0; i < 2; i++ {
		st, err = engine.Step(log, rootID, st, eventmachine.NewEvent("NEXT", nil))
		if err != nil {
			panic(err)
		}
		fmt.Println("after NEXT:", st.ActiveLeaves)
	}
}

func guardedCounter() {
	reg := eventmachine.NewBehaviorRegistry()
	reg.RegisterGuard("isEven", func(env eventmachine.Envelope) (bool, error) {
		v, _ := env.Context.Get("count")
		n, _ := v.(float64)
		return int(n)%2 == 0, nil
	})
	reg.RegisterAction("multiplyByTwo", func(env eventmachine.Envelope, raise func(eventmachine.Event)) error {
		v, _ := env.Context.Get("count")
		n, _ := v.(float64)
		return env.Context.Set("count", n*2)
	})
	reg.RegisterAction("incrementOne", func(env eventmachine.Envelope, raise func(eventmachine.Event)) error {
		v, _ := env.Context.Get("count")
		n, _ := v.(float64)
		return env.Context.Set("count", n+1)
	})

	config := map[string]any{
		"id":      "counter",
		"context": map[string]any{"count": float64(1)},
		"initial": "active",
		"states": map[string]any{
			"active": map[string]any{
				"on": map[string]any{
					"MUT": map[string]any{
						"target":  nil,
						"guards":  []any{"isEven"},
						"actions": []any{"multiplyByTwo"},
					},
					"INC": map[string]any{
						"target":  nil,
						"actions": []any{"incrementOne"},
					},
				},
			},
		},
	}
	def := mustDefine(config, reg)
	engine := eventmachine.NewTransitionEngine(def)

	log := eventmachine.NewLog()
	rootID := "demo-s2"
	st, err := engine.Start(log, rootID)
	if err != nil {
		panic(err)
	}

	for _, evt := range []string{"MUT", "INC", "MUT"} {
		st, err = engine.Step(log, rootID, st, eventmachine.NewEvent(evt, nil))
		if err != nil {
			panic(err)
		}
		v, _ := st.Context.Get("count")
		fmt.Printf("after %s: count=%v\n", evt, v)
	}
}

func alwaysRouting() {
	config := map[string]any{
		"id":      "router",
		"initial": "stateA",
		"states": map[string]any{
			"stateA": map[string]any{"on": map[string]any{"EVENT": "stateB"}},
			"stateB": map[string]any{"on": map[string]any{"@always": "stateC"}},
			"stateC": map[string]any{},
		},
	}
	def := mustDefine(config, nil)
	engine := eventmachine.NewTransitionEngine(def)

	log := eventmachine.NewLog()
	rootID := "demo-s3"
	st, err := engine.Start(log, rootID)
	if err != nil {
		panic(err)
	}
	st, err = engine.Step(log, rootID, st, eventmachine.NewEvent("EVENT", nil))
	if err != nil {
		panic(err)
	}
	fmt.Println("final leaf:", st.ActiveLeaves)
}

func forbiddenOverride() {
	config := map[string]any{
		"id":      "guarded",
		"initial": "a",
		"states": map[string]any{
			"a": map[string]any{
				"on": map[string]any{"event": "x"},
				"initial": "b",
				"states": map[string]any{
					"b": map[string]any{
						"initial": "c",
						"states": map[string]any{
							"c": map[string]any{
								"initial": "d",
								"states": map[string]any{
									"d": map[string]any{"on": map[string]any{"event": nil}},
								},
							},
						},
					},
				},
			},
			"x": map[string]any{},
		},
	}
	def := mustDefine(config, nil)
	engine := eventmachine.NewTransitionEngine(def)

	log := eventmachine.NewLog()
	rootID := "demo-s4"
	st, err := engine.Start(log, rootID)
	if err != nil {
		panic(err)
	}
	fmt.Println("initial leaf:", st.ActiveLeaves)
	st, err = engine.Step(log, rootID, st, eventmachine.NewEvent("event", nil))
	if err != nil {
		panic(err)
	}
	fmt.Println("after forbidden event:", st.ActiveLeaves)
}

func raisedEvents() {
	reg := eventmachine.NewBehaviorRegistry()
	reg.RegisterAction("appendX", func(env eventmachine.Envelope, raise func(eventmachine.Event)) error {
		v, _ := env.Context.Get("value")
		s, _ := v.(string)
		if err := env.Context.Set("value", s+"x"); err != nil {
			return err
		}
		raise(eventmachine.NewInternalEvent("x", nil))
		return nil
	})
	reg.RegisterAction("appendY", func(env eventmachine.Envelope, raise func(eventmachine.Event)) error {
		v, _ := env.Context.Get("value")
		s, _ := v.(string)
		if err := env.Context.Set("value", s+"y"); err != nil {
			return err
		}
		raise(eventmachine.NewInternalEvent("y", nil))
		return nil
	})

	config := map[string]any{
		"id":      "raiser",
		"context": map[string]any{"value": ""},
		"initial": "a",
		"states": map[string]any{
			"a": map[string]any{"entry": []any{"appendX"}, "on": map[string]any{"x": "x"}},
			"x": map[string]any{"entry": []any{"appendY"}, "on": map[string]any{"y": "y"}},
			"y": map[string]any{},
		},
	}
	def := mustDefine(config, reg)
	engine := eventmachine.NewTransitionEngine(def)

	log := eventmachine.NewLog()
	rootID := "demo-s5"
	st, err := engine.Start(log, rootID)
	if err != nil {
		panic(err)
	}

	v, _ := st.Context.Get("value")
	fmt.Println("final leaf:", st.ActiveLeaves, "value:", v)
}
