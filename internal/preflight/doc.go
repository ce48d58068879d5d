// Package preflight provides readiness checks for the tools, directories
// and drive discburn depends on.
//
// These checks run in two contexts:
//   - The record command calls RunAll before building a session. A failed
//     check aborts early instead of failing halfway through a burn.
//   - The CLI "discburn status" command uses the individual checks to
//     display host readiness.
package preflight
