package state

import "sort"

// PausedModules returns the persisted set of paused modules.
func (m *Manager) PausedModules() ([]string, error) {
	var modules []string
	if _, err := m.KVGet(pausedModulesKey, &modules); err != nil {
		return nil, err
	}
	return modules, nil
}

// PutPausedModules persists modules as the paused set. An empty set clears
// the record.
func (m *Manager) PutPausedModules(modules []string) error {
	if len(modules) == 0 {
		return m.KVDelete(pausedModulesKey)
	}
	sorted := append([]string(nil), modules...)
	sort.Strings(sorted)
	return m.KVPut(pausedModulesKey, sorted)
}
