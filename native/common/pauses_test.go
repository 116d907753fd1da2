package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPauseSetToggles(t *testing.T) {
	p := NewPauseSet("Farm", " ")
	require.True(t, p.IsPaused("farm"))
	require.False(t, p.IsPaused("vault"))
	require.ErrorIs(t, Guard(p, "farm"), ErrModulePaused)

	p.Pause("vault")
	require.Equal(t, []string{"farm", "vault"}, p.Paused())

	p.Resume("FARM")
	require.NoError(t, Guard(p, "farm"))
	require.Equal(t, []string{"vault"}, p.Paused())
}

func TestNilPauseSetIsNeverPaused(t *testing.T) {
	var p *PauseSet
	require.False(t, p.IsPaused("farm"))
}

func TestCheckModule(t *testing.T) {
	require.NoError(t, CheckModule(ModuleFarm))
	require.NoError(t, CheckModule(" Vault "))
	require.ErrorIs(t, CheckModule("bank"), ErrUnknownModule)
}

func TestGuardNamesPausedModule(t *testing.T) {
	err := Guard(NewPauseSet(ModuleVault), ModuleVault)
	require.ErrorIs(t, err, ErrModulePaused)
	require.Contains(t, err.Error(), ModuleVault)
}
