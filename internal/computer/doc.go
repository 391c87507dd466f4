// Package computer provides the worker node of the task space.
// A computer receives tasks from the space, executes atomic tasks and
// successors, splits the others, and keeps a cached copy of the shared value
// that it exchanges with the space.
package computer
