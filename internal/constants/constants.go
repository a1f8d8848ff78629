// Package constants provides named constants used throughout the fipsim codebase.
// This centralizes labels and defaults that appear in snapshots, config and the CLI.
package constants

// Frame and binding labels as they appear in snapshots.
const (
	// RootFrameLabel labels the frame that exists before any call is made.
	// It holds the input list and the final result.
	RootFrameLabel = "main"

	// ReverseFramePrefix prefixes the label of each recursive reverse frame;
	// the depth is appended ("reverse#0", "reverse#1", ...).
	ReverseFramePrefix = "reverse#"

	LabelList   = "list"
	LabelAcc    = "acc"
	LabelHead   = "x"
	LabelTail   = "xs"
	LabelNew    = "new"
	LabelReturn = "return"
	LabelResult = "result"
)

// Discipline names accepted on the command line, in config and over MCP.
const (
	// DisciplineFIP reuses uniquely owned cells in place.
	DisciplineFIP = "fip"

	// DisciplineRC allocates a fresh cell for every cons and relies on
	// reference counting to free the input.
	DisciplineRC = "rc"
)

// Input limits.
const (
	// MaxListLength bounds the input list. Each element costs a recursion
	// level and a dozen or so snapshots.
	MaxListLength = 256
)
