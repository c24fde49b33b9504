// Package preflight checks that docchat can run before the server starts.
//
// The checks cover:
//   - Write permissions in the data directory
//   - Free disk space for the index and database (minimum 100MB)
//   - Whether the local embedding model is already downloaded
//   - Whether a completion API key is configured
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: ".docchat"})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
