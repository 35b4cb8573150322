package models

// Status is the observed lifecycle state of a managed resource. Only the
// reconciler writes it; every change must pass the transition table below.
type Status string

const (
	StatusCreated        Status = "created"
	StatusProvisioning   Status = "provisioning"
	StatusReady          Status = "ready"
	StatusFailed         Status = "failed"
	StatusDeprovisioning Status = "deprovisioning"
	StatusDeleted        Status = "deleted"
)

// DesiredState is what the owner wants the resource to become.
type DesiredState string

const (
	DesiredReady   DesiredState = "ready"
	DesiredDeleted DesiredState = "deleted"
)

// transitions is the closed set of legal observed-state changes.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusProvisioning, StatusDeprovisioning, StatusFailed},
	StatusProvisioning:   {StatusReady, StatusFailed, StatusDeprovisioning},
	StatusReady:          {StatusDeprovisioning},
	StatusFailed:         {StatusProvisioning, StatusDeprovisioning},
	StatusDeprovisioning: {StatusDeleted, StatusFailed},
	StatusDeleted:        nil,
}

// CanTransition reports whether moving from one observed state to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status needs no further reconciliation for the
// given desired state. A failed resource is terminal until the owner retries
// or deletes it; once deletion is desired it has work pending again.
func Terminal(status Status, desired DesiredState) bool {
	switch status {
	case StatusDeleted:
		return true
	case StatusReady, StatusFailed:
		return desired != DesiredDeleted
	default:
		return false
	}
}
