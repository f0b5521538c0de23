// Package core defines the shared data model of the orchestration kernel:
// immutable Events, role-based Content parts, the append-only Session plus
// its store interface, and the per-call InvocationContext whose emit/resume
// channel pair carries events from agents to the runner one at a time.
package core
