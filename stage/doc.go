// Package stage implements the four workflow stages: plan/route, gather,
// write and review. Each stage is a function over ResearchState that mutates
// the state in place and records a routing decision in NextStage. Recoverable
// failures never escape a stage; they are converted into a degraded result
// plus a routing decision so the workflow engine always makes forward
// progress. Only unexpected errors propagate.
package stage
