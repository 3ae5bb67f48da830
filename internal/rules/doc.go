// Package rules defines severity levels and the threshold evaluator that maps
// a raw metric value to a severity. Evaluation is a pure function over the
// full float domain; samples that cannot be classified (NaN) come back as
// Unknown rather than Normal so a failed probe never reads as healthy.
package rules
