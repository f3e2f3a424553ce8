package shadow

import (
	"testing"

	"github.com/anshulkhare7/shadowd/internal/equipment"
)

func TestParseDelta(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    StateMap
		wantErr bool
	}{
		{
			name:    "single_kind",
			payload: `{"state":{"blower":{"isActive":true}},"version":3}`,
			want:    StateMap{equipment.KindBlower: {IsActive: true}},
		},
		{
			name:    "unknown_kind_skipped",
			payload: `{"state":{"conveyor":{"isActive":true},"vibrofeeder":{"isActive":true}}}`,
			want:    StateMap{equipment.KindVibrofeeder: {IsActive: true}},
		},
		{
			name:    "missing_is_active_reads_false",
			payload: `{"state":{"blower":{}}}`,
			want:    StateMap{equipment.KindBlower: {IsActive: false}},
		},
		{
			name:    "malformed_is_active_reads_false",
			payload: `{"state":{"blower":{"isActive":"yes"}}}`,
			want:    StateMap{equipment.KindBlower: {IsActive: false}},
		},
		{
			name:    "empty_state",
			payload: `{"state":{}}`,
			want:    nil,
		},
		{
			name:    "not_json",
			payload: `{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDelta([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDelta error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseDelta = %v, want %v", got, tt.want)
			}
			for kind, st := range tt.want {
				if got[kind] != st {
					t.Errorf("ParseDelta[%s] = %v, want %v", kind, got[kind], st)
				}
			}
		})
	}
}

func TestParseDocument(t *testing.T) {
	payload := `{
		"state": {
			"desired": {"blower":{"isActive":true}},
			"reported": {"blower":{"isActive":false},"vibrofeeder":{"isActive":true}}
		},
		"clientToken": "tok-1"
	}`

	doc, token, err := ParseDocument([]byte(payload))
	if err != nil {
		t.Fatalf("ParseDocument error: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q, want %q", token, "tok-1")
	}
	if !doc.Desired[equipment.KindBlower].IsActive {
		t.Error("desired blower should be active")
	}
	if len(doc.Reported) != 2 {
		t.Errorf("reported has %d kinds, want 2", len(doc.Reported))
	}
}

func TestPendingDelta(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want StateMap
	}{
		{
			name: "differing_kind_only",
			doc: Document{
				Desired:  StateMap{equipment.KindBlower: {IsActive: true}, equipment.KindVibrofeeder: {IsActive: false}},
				Reported: StateMap{equipment.KindBlower: {IsActive: true}, equipment.KindVibrofeeder: {IsActive: true}},
			},
			want: StateMap{equipment.KindVibrofeeder: {IsActive: false}},
		},
		{
			name: "offline_set_desired",
			doc: Document{
				Desired:  StateMap{equipment.KindBlower: {IsActive: true}},
				Reported: StateMap{equipment.KindBlower: {IsActive: false}},
			},
			want: StateMap{equipment.KindBlower: {IsActive: true}},
		},
		{
			name: "desired_without_reported_ignored",
			doc: Document{
				Desired: StateMap{equipment.KindBlower: {IsActive: true}},
			},
			want: nil,
		},
		{
			name: "in_sync",
			doc: Document{
				Desired:  StateMap{equipment.KindBlower: {IsActive: true}},
				Reported: StateMap{equipment.KindBlower: {IsActive: true}},
			},
			want: nil,
		},
		{
			name: "no_desired",
			doc: Document{
				Reported: StateMap{equipment.KindBlower: {IsActive: false}},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.doc.PendingDelta()
			if len(got) != len(tt.want) {
				t.Fatalf("PendingDelta = %v, want %v", got, tt.want)
			}
			for kind, st := range tt.want {
				if got[kind] != st {
					t.Errorf("PendingDelta[%s] = %v, want %v", kind, got[kind], st)
				}
			}
		})
	}
}
