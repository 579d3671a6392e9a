// Package sanitizer normalizes free-text input before validation and storage.
//
// All functions are idempotent and never fail; invalid input yields an empty
// string rather than an error.
//
// Normalization includes:
//   - Phone numbers: E.164 using the clinic's region for national formats
//   - Patient references: trimmed, inner whitespace removed
//   - Notes: whitespace collapsed, control characters dropped
//   - Priorities: clamped to the configured range
package sanitizer
