package equipment

import (
	"errors"
	"sync"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{name: "blower", input: "blower", want: KindBlower},
		{name: "vibrofeeder", input: "vibrofeeder", want: KindVibrofeeder},
		{name: "unknown", input: "conveyor", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case_sensitive", input: "Blower", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q) expected error, got %q", tt.input, got)
				}
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("ParseKind(%q) error = %v, want ErrUnknownKind", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetStateReadAfterWrite(t *testing.T) {
	c := New(NewMemory())

	for _, kind := range Kinds() {
		for _, desired := range []bool{true, false, true} {
			verified, err := c.SetState(kind, desired)
			if err != nil {
				t.Fatalf("SetState(%s, %v) error: %v", kind, desired, err)
			}
			if verified != desired {
				t.Errorf("SetState(%s, %v) verified %v", kind, desired, verified)
			}

			got, err := c.GetState(kind)
			if err != nil {
				t.Fatalf("GetState(%s) error: %v", kind, err)
			}
			if got != verified {
				t.Errorf("GetState(%s) = %v, SetState returned %v", kind, got, verified)
			}
		}
	}
}

func TestSetStateUnknownKind(t *testing.T) {
	c := New(NewMemory())

	if _, err := c.SetState(Kind("conveyor"), true); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("SetState with unknown kind: error = %v, want ErrUnknownKind", err)
	}
	if _, err := c.GetState(Kind("conveyor")); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("GetState with unknown kind: error = %v, want ErrUnknownKind", err)
	}
}

func TestSetStateReturnsStuckValue(t *testing.T) {
	mem := NewMemory()
	c := New(mem)

	// Hardware that cannot energize must be reported as-is, not echoed.
	mem.Force(KindVibrofeeder, false)

	verified, err := c.SetState(KindVibrofeeder, true)
	if err != nil {
		t.Fatalf("SetState error: %v", err)
	}
	if verified {
		t.Error("SetState returned true for stuck-off hardware")
	}
}

func TestAllStates(t *testing.T) {
	c := New(NewMemory())

	if _, err := c.SetState(KindBlower, true); err != nil {
		t.Fatal(err)
	}

	states, err := c.AllStates()
	if err != nil {
		t.Fatalf("AllStates error: %v", err)
	}
	if len(states) != len(Kinds()) {
		t.Fatalf("AllStates returned %d entries, want %d", len(states), len(Kinds()))
	}
	if !states[KindBlower] {
		t.Error("blower should be active")
	}
	if states[KindVibrofeeder] {
		t.Error("vibrofeeder should be inactive")
	}
}

func TestAllOff(t *testing.T) {
	c := New(NewMemory())

	for _, kind := range Kinds() {
		if _, err := c.SetState(kind, true); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.AllOff(); err != nil {
		t.Fatalf("AllOff error: %v", err)
	}

	states, err := c.AllStates()
	if err != nil {
		t.Fatal(err)
	}
	for kind, active := range states {
		if active {
			t.Errorf("%s still active after AllOff", kind)
		}
	}
}

func TestConcurrentSetStateSerialized(t *testing.T) {
	c := New(NewMemory())

	// With the per-kind lock, the read-back inside SetState always observes
	// the caller's own write, never a concurrent one.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				desired := (id+j)%2 == 0
				verified, err := c.SetState(KindBlower, desired)
				if err != nil {
					t.Errorf("SetState error: %v", err)
					return
				}
				if verified != desired {
					t.Errorf("SetState(%v) verified %v, write/read-back interleaved", desired, verified)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
