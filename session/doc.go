// Package session manages the set of concurrently running research
// workflows. The Manager owns a registry of sessions, runs one workflow
// engine per session as an independent goroutine, persists terminal and
// interrupted sessions to a durable store and exposes the caller-facing
// lifecycle operations: create, status, result, resume, delete and list.
package session
