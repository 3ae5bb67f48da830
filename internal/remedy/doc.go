// Package remedy performs bounded automatic remediation. Each alert carries
// an attempt budget; the executor reserves an attempt before invoking the
// named action so that a slow action can never be retried unboundedly by a
// concurrent escalation. Action implementations live behind the Invoker
// interface; their failures become recorded outcomes, never engine errors.
package remedy
