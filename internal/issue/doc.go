// SPDX-License-Identifier: MPL-2.0

// Package issue provides the error taxonomy for the release pipeline:
// structured, actionable errors tagged with a failure kind, plus
// rendered markdown guidance for recurring failure classes.
package issue
