// Package session holds the description of one burn request: the tracks to
// write, the burn flags, the single output target and the side-channel tags
// stages read. Settings and track lists can be pushed and popped so callers
// can try a hypothetical configuration and restore the original exactly.
package session
