// Package simulation provides a test harness for validating the memory
// properties of both reversal disciplines.
//
// The simulation exercises the real Engine, reversal algorithm,
// SQLiteTraceStore and metrics Collector with no mocks. Scenarios name an
// input list and the disciplines to run; the Runner records every emitted
// snapshot, persists the trace, reads it back and hands the frames to
// property assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestPairReversal(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "pair",
//	        Values: []int{1, 2},
//	    })
//	    simulation.AssertForest(t, result.Runs["fip"])
//	    simulation.AssertResultEquivalent(t, result)
//	}
package simulation
