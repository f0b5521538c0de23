// Package runner orchestrates invocations over a fixed agent tree. A Run
// commits the user message, resolves the continuing agent purely from the
// session log, streams the agent's events to the caller while persisting
// them, and applies event actions (state deltas, transfers, pauses) along the
// way. RunLive layers a duplex conversation loop on top of single runs.
package runner
