// Package workflow wires submission, monitoring, caching, and tier shaping
// into the operations the CLI exposes.
//
// Runner.Analyze submits one input and follows it to a terminal state;
// Runner.Resume re-attaches to jobs a previous process left in flight; and
// Runner.Deliver hands out the cached result at most once. Job state is
// mirrored into the store while a job is in flight and removed once the
// outcome has been consumed by the cache. Only one process may drive jobs
// at a time, enforced by an exclusive lock file.
package workflow
