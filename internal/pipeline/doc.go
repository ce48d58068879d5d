// Package pipeline runs chains of burn stages.
//
// A Task owns an ordered chain of Items (normally Jobs). Each run activates
// every item, lets stages that would be a no-op opt out, starts the active
// ones from the output end backward with OS pipes between neighbours, and
// then ticks them every 500ms until a stage reports completion, an error or
// the task is cancelled. The Ctx embedded in a Task carries the current
// track, byte counters, rate samples and the current user-visible action.
package pipeline
