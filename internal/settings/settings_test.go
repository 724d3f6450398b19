package settings

import "testing"

type fakeStore struct {
	values map[string]interface{}
	err    error
}

func (f fakeStore) GetAllSettings() (map[string]interface{}, error) {
	return f.values, f.err
}

func TestResolveDefaultsOnly(t *testing.T) {
	eff, err := Resolve(fakeStore{values: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if eff != Defaults() {
		t.Errorf("eff = %+v, want defaults %+v", eff, Defaults())
	}
}

func TestResolveOverridesMergeOntoDefaults(t *testing.T) {
	// Simulate the shape store.GetAllSettings returns after a round trip
	// through JSON (numbers decode as float64), matching store.GetAllSettings.
	stored := map[string]interface{}{
		"auth_required":            true,
		"allow_anonymous_terminal": false,
		"max_sessions":             float64(2),
		"idle_ttl_seconds":         float64(30),
		"scrollback_limit_chars":   float64(1000),
		"default_unix_shell":       "/bin/zsh",
		"default_windows_shell":    "cmd.exe",
	}

	eff, err := Resolve(fakeStore{values: stored})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := Effective{
		AuthRequired:           true,
		AllowAnonymousTerminal: false,
		MaxSessions:            2,
		IdleTTLSeconds:         30,
		ScrollbackLimitChars:   1000,
		DefaultUnixShell:       "/bin/zsh",
		DefaultWindowsShell:    "cmd.exe",
	}
	if eff != want {
		t.Errorf("eff = %+v, want %+v", eff, want)
	}
}

func TestResolvePartialOverrideLeavesRestDefaulted(t *testing.T) {
	stored := map[string]interface{}{"max_sessions": float64(5)}

	eff, err := Resolve(fakeStore{values: stored})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := Defaults()
	want.MaxSessions = 5
	if eff != want {
		t.Errorf("eff = %+v, want %+v", eff, want)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	wantErr := errStoreFailure{}
	_, err := Resolve(fakeStore{err: wantErr})
	if err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

type errStoreFailure struct{}

func (errStoreFailure) Error() string { return "store failure" }
