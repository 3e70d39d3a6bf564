package system

import (
	"context"
	"fmt"
	"testing"
)

type recordingService struct {
	name   string
	failOn string // "start" or "stop"
	events *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.events = append(*s.events, "start:"+s.name)
	if s.failOn == "start" {
		return fmt.Errorf("%s refused to start", s.name)
	}
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	if s.failOn == "stop" {
		return fmt.Errorf("%s refused to stop", s.name)
	}
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i, e := range want {
		if events[i] != e {
			t.Errorf("event %d: expected %s, got %s", i, e, events[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	var events []string

	if err := m.Register(&recordingService{name: "dup", events: &events}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", events: &events}); err == nil {
		t.Fatal("expected an error for a duplicate name")
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	_ = m.Register(&recordingService{name: "ok", events: &events})
	_ = m.Register(&recordingService{name: "bad", failOn: "start", events: &events})

	if err := m.Start(ctx); err == nil {
		t.Fatal("expected start to fail")
	}

	want := []string{"start:ok", "start:bad", "stop:ok"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i, e := range want {
		if events[i] != e {
			t.Errorf("event %d: expected %s, got %s", i, e, events[i])
		}
	}
}

func TestManagerRejectsRegistrationAfterStart(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	_ = m.Register(&recordingService{name: "early", events: &events})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(&recordingService{name: "late", events: &events}); err == nil {
		t.Fatal("expected registration after start to fail")
	}
}

func TestManagerStopCollectsFirstError(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	_ = m.Register(&recordingService{name: "fine", events: &events})
	_ = m.Register(&recordingService{name: "stuck", failOn: "stop", events: &events})

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := m.Stop(ctx)
	if err == nil {
		t.Fatal("expected stop to report the failure")
	}
	// Both services were still asked to stop.
	if events[len(events)-1] != "stop:fine" {
		t.Errorf("stop did not continue past the failure: %v", events)
	}
}
