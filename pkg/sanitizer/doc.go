// Package sanitizer normalizes free-text input before validation and storage.
//
// All functions are idempotent: applying them more than once gives the same
// result. Invalid input degrades to an empty string or slice rather than an
// error; validation decides whether that is acceptable.
//
// Normalization includes:
//   - Text: collapse whitespace, trim leading/trailing spaces
//   - Categories: lowercase, non letters/digits become single underscores ("Study Room" becomes "study_room")
//   - Slices: remove duplicates and empty values after normalization
package sanitizer
