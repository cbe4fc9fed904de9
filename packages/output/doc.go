// Package output provides formatters for displaying reqly results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output of the response and test results
//   - JSON: Machine-readable JSON output
//
// HistoryReporter renders stored history and its latency statistics.
// JSONFormatter accumulates outcomes and writes them on Flush.
package output
