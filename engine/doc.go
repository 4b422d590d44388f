// Package engine implements the bounded state machine that drives one
// research session: plan/route, gather, write and review stages plus two
// human-in-the-loop interrupt gates. The engine owns its session's
// ResearchState as a single writer, executes stages strictly sequentially
// and exposes snapshot reads for the session manager.
package engine
