// Package burn drives whole operations on a session: it locks the drives,
// checks the burn flags against what the medium supports, warns before data
// is lost, runs the task sequence the caps build and recovers from the
// failures a user or a pause can fix.
//
// Everything the controller needs from the application goes through the
// Interaction interface. Prompts block the operation until answered.
package burn
