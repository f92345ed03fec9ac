package coop

// Log helpers. The logiface builder chain is nil-safe, so every site below
// is a no-op when no logger was configured via [WithLogger].

// logPanic records a recovered callback panic.
func (l *Loop) logPanic(kind string, v any) {
	l.log.Err().
		Uint64("loop_id", l.id).
		Str("kind", kind).
		Any("panic", v).
		Log("coop: callback panicked")
}

// logState records loop lifecycle transitions.
func (l *Loop) logState(state LoopState, msg string) {
	l.log.Debug().
		Uint64("loop_id", l.id).
		Stringer("state", state).
		Log(msg)
}

// logUnhandledRejection records a rejection that never found a handler.
func (l *Loop) logUnhandledRejection(futureID uint64, reason any) {
	l.log.Err().
		Uint64("loop_id", l.id).
		Uint64("future_id", futureID).
		Any("reason", reason).
		Log("coop: unhandled rejection")
}
