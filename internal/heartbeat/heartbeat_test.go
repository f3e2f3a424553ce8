package heartbeat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/anshulkhare7/shadowd/internal/equipment"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	published [][]byte
}

func (f *fakeTransport) Publish(_ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestPublishPayload(t *testing.T) {
	mem := equipment.NewMemory()
	if err := mem.Write(equipment.KindBlower, true); err != nil {
		t.Fatal(err)
	}

	tr := &fakeTransport{connected: true}
	p := New("raspi-bglr", "devices/heartbeat", time.Minute, tr, equipment.New(mem))

	p.publish()

	if tr.count() != 1 {
		t.Fatalf("published %d messages, want 1", tr.count())
	}

	var hb struct {
		DeviceID  string                     `json:"deviceId"`
		Timestamp int64                      `json:"timestamp"`
		Status    string                     `json:"status"`
		Equipment map[string]map[string]bool `json:"equipment"`
	}
	if err := json.Unmarshal(tr.published[0], &hb); err != nil {
		t.Fatalf("failed to decode heartbeat: %v", err)
	}

	if hb.DeviceID != "raspi-bglr" {
		t.Errorf("deviceId = %q", hb.DeviceID)
	}
	if hb.Status != "online" {
		t.Errorf("status = %q, want online", hb.Status)
	}
	if hb.Timestamp == 0 {
		t.Error("timestamp should be set")
	}
	if !hb.Equipment["blower"]["isActive"] {
		t.Error("blower should be active in heartbeat")
	}
	if hb.Equipment["vibrofeeder"]["isActive"] {
		t.Error("vibrofeeder should be inactive in heartbeat")
	}
}

func TestPublishSkippedWhenDisconnected(t *testing.T) {
	tr := &fakeTransport{connected: false}
	p := New("raspi-bglr", "devices/heartbeat", time.Minute, tr, equipment.New(equipment.NewMemory()))

	p.publish()

	if tr.count() != 0 {
		t.Errorf("published %d messages while disconnected, want 0", tr.count())
	}
}

func TestRunStopsPromptly(t *testing.T) {
	tr := &fakeTransport{connected: true}
	p := New("raspi-bglr", "devices/heartbeat", time.Hour, tr, equipment.New(equipment.NewMemory()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			t.Errorf("Run error: %v", err)
		}
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop within a second of cancellation")
	}

	// The immediate startup heartbeat may or may not have gone out before
	// cancellation; either way no further ones can.
	if tr.count() > 1 {
		t.Errorf("published %d heartbeats, want at most 1", tr.count())
	}
}
