// Package supervisor owns the registry of discovered projects and the table of
// their live child processes.
//
// Lifecycle per project:
//
//	offline --Start--> online --Stop-----------> offline
//	                          --child exits----> offline
//
// A single mutex guards the registry and the process table. Start holds it
// across the port pre-flight and the spawn, so at most one spawn succeeds for
// a project no matter how many callers race. Every live child gets exactly one
// reader goroutine that drains merged stdout/stderr into the project's log
// buffer and, when the stream ends, reaps the child. If the process table
// still points at that same child, nobody asked it to stop and the project is
// flipped back to offline.
//
// Stop kills the whole tree without a grace period: descendants first, then
// the child's process group, then the child itself. A process that is already
// gone counts as stopped.
//
// Log buffers live in their own map behind their own lock so streaming
// readers never contend with lifecycle operations.
package supervisor
