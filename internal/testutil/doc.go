// Package testutil contains helper stubs and builders used across tests to
// reduce boilerplate when scripting collaborator behavior and constructing
// core model objects. These helpers are intentionally minimal and avoid
// adding third-party dependencies. They are not intended for production
// usage.
package testutil
