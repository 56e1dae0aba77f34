// Package engine runs the external typesetting binary inside a request workspace.
//
// The invoker writes the source file, starts the engine in its own process
// group and waits for it under a per-pass wall-clock timeout.
//
// Timeout handling:
//   - The whole process group gets SIGTERM when the pass deadline expires
//   - After the termination grace period (default 5s) the group gets SIGKILL
//   - The group is SIGKILLed once more after every run so no child survives
//   - A timed-out pass returns a timeout error carrying the output so far
//
// Two-pass compilation:
//   - Pass 2 runs only when pass 1 exits zero
//   - Pass 2 supersedes pass 1 only when it also exits zero
//   - A failed or timed-out pass 2 restores the pass 1 artifact and result
//
// Output:
//   - stdout and stderr keep only their last max_output_bytes
//   - stdin is /dev/null so the engine can never wait on a terminal
package engine
