// Package monitor runs the sampling loop: a fixed-cadence scheduler fans
// targets out to a bounded worker pool, evaluates each sample against its
// thresholds, and feeds the resulting transitions to the notifier, the
// remediation executor, and the history recorder. A cycle that overruns
// its deadline is abandoned so the cadence holds.
package monitor
