// Package reaper owns the lifecycle of stdio child processes: capturing
// their stderr into a bounded per-child buffer, and on close escalating
// termination across the whole process tree (soft close, then SIGTERM, then
// SIGKILL) within bounded time, so a misbehaving server can never wedge
// shutdown.
package reaper
