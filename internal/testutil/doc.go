// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing events and booking preferences. The helpers
// are intentionally minimal and are not intended for production usage.
package testutil
