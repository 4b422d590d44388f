// Package core defines the shared domain types of the research workflow:
// the per-session ResearchState mutated by stages, the research plan and
// review verdict structures, stage routing constants, error kinds used to
// classify external failures, and the explicit retry policy value passed
// into every external-call wrapper.
//
// The package intentionally contains no I/O. Stages, the engine and the
// session manager all operate on these types; capability interfaces
// (completion, search) live next to their implementations in the model and
// search packages.
package core
