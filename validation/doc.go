// Package validation checks request fields against declarative rules.
//
// Rules are plain values so they can be loaded from configuration. Field
// order is sorted before checking, so the reported failure is
// deterministic for a given input.
package validation
