// Package runner drives the reqly request pipeline.
//
// For one request it:
//   - Runs the attached pre-request scripts in order on a copy of the request
//   - Resolves variables against pending script writes, then the environment
//   - Dispatches directly or through the relay
//   - Runs the attached test scripts against the response
//   - Records the results and appends a history entry
//
// RunAll runs independent requests concurrently with a bounded worker count,
// or sequentially with bail-on-failure.
package runner
