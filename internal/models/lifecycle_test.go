package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusProvisioning, true},
		{StatusCreated, StatusDeprovisioning, true},
		{StatusCreated, StatusFailed, true},
		{StatusCreated, StatusReady, false},
		{StatusProvisioning, StatusReady, true},
		{StatusProvisioning, StatusFailed, true},
		{StatusProvisioning, StatusDeprovisioning, true},
		{StatusProvisioning, StatusCreated, false},
		{StatusReady, StatusDeprovisioning, true},
		{StatusReady, StatusProvisioning, false},
		{StatusReady, StatusFailed, false},
		{StatusFailed, StatusProvisioning, true},
		{StatusFailed, StatusDeprovisioning, true},
		{StatusFailed, StatusCreated, false},
		{StatusDeprovisioning, StatusDeleted, true},
		{StatusDeprovisioning, StatusFailed, true},
		{StatusDeprovisioning, StatusReady, false},
		{StatusDeleted, StatusProvisioning, false},
		{StatusDeleted, StatusDeprovisioning, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"transition %s -> %s", tc.from, tc.to)
	}
}

func TestTerminal(t *testing.T) {
	require.True(t, Terminal(StatusDeleted, DesiredReady))
	require.True(t, Terminal(StatusDeleted, DesiredDeleted))
	require.True(t, Terminal(StatusFailed, DesiredReady))
	require.True(t, Terminal(StatusReady, DesiredReady))

	// Deletion pending means there is still work to do, whatever the
	// current status.
	require.False(t, Terminal(StatusReady, DesiredDeleted))
	require.False(t, Terminal(StatusFailed, DesiredDeleted))
	require.False(t, Terminal(StatusCreated, DesiredReady))
	require.False(t, Terminal(StatusProvisioning, DesiredReady))
	require.False(t, Terminal(StatusDeprovisioning, DesiredDeleted))
}
