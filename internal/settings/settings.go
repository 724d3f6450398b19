// Package settings merges hardcoded defaults with stored overrides into the
// effective configuration snapshot spec.md §3 describes, grounded on the
// original implementation's security.get_effective_settings.
package settings

// Effective is the snapshot the session manager and connection bridge
// consult at each decision point.
type Effective struct {
	AuthRequired           bool
	AllowAnonymousTerminal bool
	MaxSessions            int
	IdleTTLSeconds         int
	ScrollbackLimitChars   int
	DefaultUnixShell       string
	DefaultWindowsShell    string
}

// Defaults mirrors the hardcoded dict in the original's get_effective_settings.
func Defaults() Effective {
	return Effective{
		AuthRequired:           false,
		AllowAnonymousTerminal: true,
		MaxSessions:            50,
		IdleTTLSeconds:         0,
		ScrollbackLimitChars:   200_000,
		DefaultUnixShell:       "/bin/bash",
		DefaultWindowsShell:    "powershell.exe",
	}
}

// SettingsStore is the subset of the persistence adapter the resolver needs.
// Kept narrow and defined here (rather than imported from store) so the
// resolver doesn't couple to the store package's SessionRow machinery.
type SettingsStore interface {
	GetAllSettings() (map[string]interface{}, error)
}

// Resolve reads all stored overrides and merges them onto Defaults(),
// re-read fresh at every call site per spec.md's "snapshot at each
// decision point" requirement — this function does no caching of its own.
func Resolve(store SettingsStore) (Effective, error) {
	eff := Defaults()

	stored, err := store.GetAllSettings()
	if err != nil {
		return eff, err
	}

	if v, ok := asBool(stored["auth_required"]); ok {
		eff.AuthRequired = v
	}
	if v, ok := asBool(stored["allow_anonymous_terminal"]); ok {
		eff.AllowAnonymousTerminal = v
	}
	if v, ok := asInt(stored["max_sessions"]); ok {
		eff.MaxSessions = v
	}
	if v, ok := asInt(stored["idle_ttl_seconds"]); ok {
		eff.IdleTTLSeconds = v
	}
	if v, ok := asInt(stored["scrollback_limit_chars"]); ok {
		eff.ScrollbackLimitChars = v
	}
	if v, ok := stored["default_unix_shell"].(string); ok && v != "" {
		eff.DefaultUnixShell = v
	}
	if v, ok := stored["default_windows_shell"].(string); ok && v != "" {
		eff.DefaultWindowsShell = v
	}

	return eff, nil
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64: // JSON numbers decode as float64
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
