package events

import "testing"

func TestRecorderKeepsOrder(t *testing.T) {
	recorder := &Recorder{}
	recorder.Emit(&Event{Type: "first"})
	recorder.Emit(&Event{Type: "second"})
	recorder.Emit(nil)

	if len(recorder.Events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(recorder.Events))
	}
	if recorder.Events[0].EventType() != "first" || recorder.Events[1].EventType() != "second" {
		t.Fatalf("events recorded out of order")
	}
}

func TestMultiFansOut(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	multi := Multi{first, nil, second, NoopEmitter{}}

	multi.Emit(&Event{Type: "broadcast"})

	if len(first.Events) != 1 || len(second.Events) != 1 {
		t.Fatalf("every sink must receive the event")
	}
}
