package release

import "time"

// Actor identifies the host and user that performed a deployment.
type Actor struct {
	// Hostname is the machine name where the deployment ran.
	Hostname string
	// Username is the system user that ran it.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Deployment records the release currently linked into the deploy directory.
type Deployment struct {
	// Version is the deployed release.
	Version Version
	// DeployedAt is when the link swap completed.
	DeployedAt time.Time
	// Actor is who ran the deployment.
	Actor *Actor
	// RunID correlates the record with log lines of the run that produced it.
	RunID string
}

// Clone returns a copy of the deployment to avoid leaking internal references.
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}

	return &Deployment{
		Version:    d.Version,
		DeployedAt: d.DeployedAt,
		Actor:      d.Actor.Clone(),
		RunID:      d.RunID,
	}
}
