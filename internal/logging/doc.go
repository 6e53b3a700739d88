// Package logging wraps log/slog with the handlers and attribute helpers
// shared by every emp component. The console handler renders compact
// single-line output for interactive use; the JSON handler targets log
// collection.
package logging
