// Package sanitizer normalizes user-supplied text before validation and storage.
//
// All functions are idempotent - applying them multiple times produces the
// same result. Invalid input degrades to an empty string rather than an error;
// validators decide whether empty is acceptable.
//
// Normalization includes:
//   - Display names: collapse whitespace, trim leading/trailing spaces
//   - Emails: trim and lowercase
//   - Client info maps: keys lowercased to letters, digits and underscores, values trimmed
package sanitizer
