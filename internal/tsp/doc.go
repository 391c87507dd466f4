// Package tsp solves the Euclidean travelling salesman problem by
// branch-and-bound on the task space.
//
// The root task holds the partial tour {0}. Tasks above BaseLevel split into
// one child per unvisited city, dropping children whose lower bound exceeds
// the shared bound; tasks at BaseLevel search their subtree sequentially and
// publish every improved tour cost as the new bound. MinTour successors keep
// the best tour of their children.
package tsp
