package record

// Status is the canonical server state derived from the two independent
// observations (process liveness, network reachability) and the pending
// stop flag. It is recomputed on every read, never stored.
type Status string

const (
	StatusOffline    Status = "Offline"
	StatusStarting   Status = "Starting"
	StatusOnline     Status = "Online"
	StatusStopping   Status = "Stopping"
	StatusUnattached Status = "Unattached"
)

// DeriveStatus is the pure status function. Unattached means something
// answers on the endpoint without a locally supervised process.
func DeriveStatus(processRunning, reachable, pendingStop bool) Status {
	switch {
	case processRunning && pendingStop:
		return StatusStopping
	case processRunning && reachable:
		return StatusOnline
	case processRunning:
		return StatusStarting
	case reachable:
		return StatusUnattached
	default:
		return StatusOffline
	}
}

// Snapshot is the externally visible view of an instance: the record plus
// its id and the status derived at snapshot time.
type Snapshot struct {
	Record
	Status Status `json:"status"`
}
