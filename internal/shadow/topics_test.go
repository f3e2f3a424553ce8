package shadow

import "testing"

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("raspi-bglr")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"get", topics.Get, "$aws/things/raspi-bglr/shadow/get"},
		{"get_accepted", topics.GetAccepted, "$aws/things/raspi-bglr/shadow/get/accepted"},
		{"get_rejected", topics.GetRejected, "$aws/things/raspi-bglr/shadow/get/rejected"},
		{"update", topics.Update, "$aws/things/raspi-bglr/shadow/update"},
		{"update_accepted", topics.UpdateAccepted, "$aws/things/raspi-bglr/shadow/update/accepted"},
		{"update_rejected", topics.UpdateRejected, "$aws/things/raspi-bglr/shadow/update/rejected"},
		{"update_delta", topics.UpdateDelta, "$aws/things/raspi-bglr/shadow/update/delta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}
