// Package escalate re-fires notifications for Critical alerts that stay
// open. A background sweeper claims due alerts from the store on its own
// cadence, independent of the sampling loop, so a stalled collector cannot
// silence escalations.
package escalate
