// Package recovery restarts the managed server and self-heals by disabling
// recently added mods.
//
// # Algorithm
//
// Supervisor.Recover runs up to MaxAttempts iterations. Each iteration:
//
//  1. Stops the service. A failed stop is logged as a warning and the
//     iteration continues.
//  2. Starts the service.
//     - On failure, if attempts remain, the Selector picks one enabled
//       artifact (newest by default) and it is moved to the disabled
//       directory. If there is nothing left to disable the run ends early.
//     - On success, the supervisor waits StabilityWindow and asks whether the
//       service is still active. Active is the only success exit. Instability
//       never disables an artifact; the next iteration simply retries.
//
// # Results
//
// Every run produces a Result with the flat step log shown to operators, one
// Attempt record per iteration, the artifacts that were disabled, and a Reason
// when the run failed. Results are handed to any configured RunRecorder.
//
// # Concurrency
//
// Only one run may be in flight per Supervisor. A concurrent call returns
// ErrRecoveryInProgress immediately rather than queueing.
package recovery
