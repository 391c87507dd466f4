// Package space implements the coordinator of the task space.
//
// The space owns every structure shared by the computers of a run:
//   - the ready queue of runnable tasks, drained by per computer dispatch loops
//   - the join table of successors waiting for their children's results
//   - the queue of terminal results handed to clients by Take
//   - the global shared value, forwarded to computers when it improves
//
// Computers are registered through the ComputerRegistry and watched by a
// health check loop. A computer that fails is unregistered and the task it
// held is dropped.
package space
