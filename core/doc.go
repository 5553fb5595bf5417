// Package core defines the domain model for the Bastion security monitor.
//
// The core package provides:
//   - Domain types (Event, Alert, Rule, Condition, AlertRequest)
//   - Alert lifecycle state machine with forward-only transitions
//   - Typed condition parsing with validation at load time
//   - Constants and enums for severity and status values
//
// Domain types are plain data with validation methods attached. Business
// logic that spans storage or transport lives in the service and detect
// packages, which consume these types through small interfaces defined at
// the point of use.
package core
