package system

import (
	"context"
	"errors"
	"testing"
)

type recorder struct {
	phase Phase
	name  string
	log   *[]string
	err   error
}

func (r recorder) Phase() Phase { return r.phase }

func (r recorder) Update(context.Context) error {
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestRunner_PhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseDispatch, "dispatch", &log, nil})
	r.Register(recorder{PhaseCollect, "collect", &log, nil})
	r.Register(recorder{PhaseDrain, "drain", &log, nil})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"collect", "drain", "dispatch"}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order = %v, want %v", log, want)
		}
	}
}

func TestRunner_StopsOnError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	r := NewRunner()
	r.Register(recorder{PhaseDrain, "drain", &log, boom})
	r.Register(recorder{PhaseDispatch, "dispatch", &log, nil})

	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want boom", err)
	}
	if len(log) != 1 {
		t.Fatalf("ran %v, want only drain", log)
	}
}

func TestRunner_RunPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseCollect, "collect", &log, nil})
	r.Register(recorder{PhaseDispatch, "dispatch", &log, nil})

	if err := r.RunPhase(context.Background(), PhaseDispatch); err != nil {
		t.Fatal(err)
	}
	if len(log) != 1 || log[0] != "dispatch" {
		t.Fatalf("ran %v, want [dispatch]", log)
	}
}

func TestRunner_PhaseErrorNamesPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseDrain, "drain", &log, context.Canceled})

	err := r.Run(context.Background())
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseDrain {
		t.Fatalf("err = %v, want a drain PhaseError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatal("PhaseError does not unwrap to the cause")
	}
	if err.Error() != "drain phase: context canceled" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRunner_SamePhaseKeepsRegistrationOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseDispatch, "d1", &log, nil})
	r.Register(recorder{PhaseCollect, "c1", &log, nil})
	r.Register(recorder{PhaseDispatch, "d2", &log, nil})
	r.Register(recorder{PhaseCollect, "c2", &log, nil})

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"c1", "c2", "d1", "d2"}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order = %v, want %v", log, want)
		}
	}
}
