// Package mcp provides an MCP (Model Context Protocol) server for fipsim.
package mcp

import (
	"github.com/nvandessel/fipsim/internal/engine"
)

// FipsimReverseInput defines the input for the fipsim_reverse tool.
type FipsimReverseInput struct {
	Values        []int  `json:"values" jsonschema:"Integers of the list to reverse (at most 256)"`
	Discipline    string `json:"discipline,omitempty" jsonschema:"Memory discipline: 'fip' (reuse cells in place) or 'rc' (allocate and free). Default: fip"`
	Format        string `json:"format,omitempty" jsonschema:"Rendering of the final frame: 'text' (default), 'dot' or 'json'"`
	IncludeFrames bool   `json:"include_frames,omitempty" jsonschema:"Render every frame instead of only the final one"`
}

// FipsimReverseOutput defines the output for the fipsim_reverse tool.
type FipsimReverseOutput struct {
	RunID      string       `json:"run_id" jsonschema:"ID of the stored trace (use with fipsim_frame)"`
	Discipline string       `json:"discipline" jsonschema:"Discipline the run used"`
	Input      []int        `json:"input" jsonschema:"Values as given"`
	Result     []int        `json:"result" jsonschema:"Values of the reversed list"`
	Stats      engine.Stats `json:"stats" jsonschema:"Heap and scope operation counts"`
	FrameCount int          `json:"frame_count" jsonschema:"Number of snapshots in the trace"`
	Format     string       `json:"format" jsonschema:"Format of Rendered"`
	Rendered   string       `json:"rendered" jsonschema:"Final frame (or every frame) in the requested format"`
}

// FipsimFrameInput defines the input for the fipsim_frame tool.
type FipsimFrameInput struct {
	RunID  string `json:"run_id" jsonschema:"Run ID or unique prefix"`
	Seq    int    `json:"seq,omitempty" jsonschema:"Frame number starting at 1. Default: the last frame"`
	Format string `json:"format,omitempty" jsonschema:"Rendering: 'text' (default), 'dot' or 'json'"`
}

// FipsimFrameOutput defines the output for the fipsim_frame tool.
type FipsimFrameOutput struct {
	RunID      string `json:"run_id" jsonschema:"Full run ID"`
	Seq        int    `json:"seq" jsonschema:"Frame number"`
	Step       string `json:"step" jsonschema:"Engine step that emitted the frame"`
	FrameCount int    `json:"frame_count" jsonschema:"Number of frames in the run"`
	Format     string `json:"format" jsonschema:"Format of Rendered"`
	Rendered   string `json:"rendered" jsonschema:"The frame in the requested format"`
}

// FipsimRunsInput defines the input for the fipsim_runs tool.
type FipsimRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return, newest first. Default: 20"`
}

// RunSummary is one stored run as listed by fipsim_runs.
type RunSummary struct {
	ID            string `json:"id"`
	CreatedAt     string `json:"created_at"`
	Discipline    string `json:"discipline"`
	Input         []int  `json:"input"`
	Result        []int  `json:"result"`
	FrameCount    int    `json:"frame_count"`
	Allocations   int    `json:"allocations"`
	Reuses        int    `json:"reuses"`
	Deallocations int    `json:"deallocations"`
}

// FipsimRunsOutput defines the output for the fipsim_runs tool.
type FipsimRunsOutput struct {
	Runs  []RunSummary `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int          `json:"count" jsonschema:"Number of runs returned"`
}
