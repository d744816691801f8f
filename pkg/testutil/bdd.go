package testutil

import "testing"

// Given, When and Then nest subtests so a router scenario reads as a story in
// `go test -v` output.
func Given(t *testing.T, state string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+state, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+outcome, fn)
}
