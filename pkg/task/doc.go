// Package task defines the data model and contracts of the task space.
//
// A client decomposes a problem into a tree of tasks. A computer either
// executes a task directly (atomic tasks and successors) or splits it into
// child tasks plus one successor that combines the children's results. The
// space counts the outstanding children of every successor and makes the
// successor runnable once its join counter reaches zero.
//
// This package contains:
//   - Task, the header every task carries, and Body, the problem specific part
//   - Result, the immutable output of one execution
//   - Space, Computer and Job, the contracts between client, space and computers
//   - the wire codec for tasks and their bodies
package task
