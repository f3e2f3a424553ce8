// Package shadow implements the device shadow reconciliation engine: it
// consumes desired-state deltas and full-document snapshots from the shadow
// service, applies them to hardware, and publishes back the verified result
// as reported state.
package shadow

import "fmt"

// Topics holds the seven canonical shadow topic names for one thing.
type Topics struct {
	Get            string
	GetAccepted    string
	GetRejected    string
	Update         string
	UpdateAccepted string
	UpdateRejected string
	UpdateDelta    string
}

// TopicsFor derives the shadow topic names from a thing identifier.
func TopicsFor(thing string) Topics {
	base := fmt.Sprintf("$aws/things/%s/shadow", thing)
	return Topics{
		Get:            base + "/get",
		GetAccepted:    base + "/get/accepted",
		GetRejected:    base + "/get/rejected",
		Update:         base + "/update",
		UpdateAccepted: base + "/update/accepted",
		UpdateRejected: base + "/update/rejected",
		UpdateDelta:    base + "/update/delta",
	}
}
