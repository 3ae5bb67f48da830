// Package alerts owns the authoritative table of active alerts and every
// state transition on it. All mutation goes through the Store, which
// serializes transitions per monitored key; no other component touches an
// Alert's fields directly. The package also defines the notification Event
// shape emitted on transitions.
package alerts
