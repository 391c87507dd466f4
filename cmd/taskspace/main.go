// Package main provides the entry point for the taskspace CLI.
package main

import "yqhp/task-space/cmd"

func main() {
	cmd.Execute()
}
