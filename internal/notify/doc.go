// Package notify fans notification events out to the configured delivery
// channels. Channels are independent failure domains: each send runs behind
// its own circuit breaker and a failure is logged and counted, never
// returned to the evaluation pipeline. A quiet-hours window suppresses
// non-critical deliveries while leaving alert state untouched.
package notify
