package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReentrancyGuardRejectsNestedEntry(t *testing.T) {
	var guard ReentrancyGuard

	release, err := guard.Enter()
	require.NoError(t, err)
	require.True(t, guard.Entered())

	_, err = guard.Enter()
	require.ErrorIs(t, err, ErrReentrantCall)

	release()
	require.False(t, guard.Entered())

	release, err = guard.Enter()
	require.NoError(t, err)
	release()
}

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

func TestGuardHonoursPauses(t *testing.T) {
	require.NoError(t, Guard(nil, "farm"))
	require.NoError(t, Guard(pauses{"vault": true}, "farm"))
	require.ErrorIs(t, Guard(pauses{"farm": true}, "farm"), ErrModulePaused)
}
