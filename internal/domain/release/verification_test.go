package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestResultPassed covers empty, passing, skipped-only and failing results.
func TestResultPassed(t *testing.T) {
	t.Parallel()

	require.False(t, (*Result)(nil).Passed())
	require.False(t, new(Result).Passed())

	r := &Result{Checks: []FileCheck{
		{Path: "a", Status: CheckPassed},
		{Path: "b", Status: CheckSkipped},
	}}
	require.True(t, r.Passed())
	require.Empty(t, r.Failed())

	r.Checks = append(r.Checks, FileCheck{Path: "c", Status: CheckFailed})
	require.False(t, r.Passed())
	require.Len(t, r.Failed(), 1)
	require.Equal(t, "c", r.Failed()[0].Path)
}

// TestDeploymentClone verifies Clone deep-copies the actor and handles nil.
func TestDeploymentClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Deployment)(nil).Clone())

	d := &Deployment{
		Version:    7,
		DeployedAt: time.Now().UTC(),
		Actor:      &Actor{Hostname: "ns1", Username: "named"},
		RunID:      "run",
	}

	c := d.Clone()
	require.Equal(t, d, c)
	require.NotSame(t, d.Actor, c.Actor)
}
