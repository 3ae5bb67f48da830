// Package config loads and validates the pulsewatch YAML configuration:
// monitored targets with their thresholds, notification channels, quiet
// hours, escalation cadence, and the remediation action map. Configuration
// is read once at startup and treated as immutable for the process lifetime.
package config
