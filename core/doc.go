// Package core contains the shared domain types of the calendar negotiation
// engine: the Event record and its status state machine, booking preferences,
// the error taxonomy, and the EventStore persistence contract with optimistic
// versioning. Higher layers (calendar, surface, store implementations) depend
// on core; core depends only on logging.
package core
