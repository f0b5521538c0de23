// Package agent provides the composition kernel: a fixed tree of named nodes
// where leaves produce events by delegating to an Executor and composites
// (sequential, loop, parallel) order, repeat or interleave their children's
// event sequences while forwarding every event through the emit/resume gate.
package agent
