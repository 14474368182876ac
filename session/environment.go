package session

import "time"

// Environment is the concatenation of a session's Settings, Context and
// Tasks content, used as the prompt prefix for every requirement query.
// Complete means all three constituents are non-empty. Dirty means the last
// recomputation produced a different combined string. The timestamp is the
// newest last-write time across all constituent files as recorded at the
// last change of the combined string; it is reset to the zero time when the
// environment becomes incomplete and is not refreshed by an Assemble that
// leaves the combined string unchanged.
type Environment struct {
	combined  string
	complete  bool
	dirty     bool
	timestamp time.Time
}

// Assemble recomputes the environment from the three category strings.
// newestInput is the newest last-write time across the Settings, Context
// and Task files. It returns whether the combined string changed.
func (e *Environment) Assemble(settings, context, tasks string, newestInput time.Time) bool {
	if settings == "" || context == "" || tasks == "" {
		e.complete = false
		e.dirty = false
		e.timestamp = time.Time{}
		return false
	}

	combined := settings + context + tasks
	changed := combined != e.combined
	if changed {
		e.combined = combined
		e.dirty = true
		e.timestamp = newestInput
	} else {
		e.dirty = false
	}
	e.complete = true
	return changed
}

// Take returns the combined string and clears the dirty flag.
func (e *Environment) Take() string {
	e.dirty = false
	return e.combined
}

func (e *Environment) Complete() bool       { return e.complete }
func (e *Environment) Dirty() bool          { return e.dirty }
func (e *Environment) ClearDirty()          { e.dirty = false }
func (e *Environment) Timestamp() time.Time { return e.timestamp }
