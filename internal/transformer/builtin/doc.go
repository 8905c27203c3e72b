// Package builtin contains reusable record transformers. Every type here
// implements transformer.Transformer and is configured by value; the crash
// specific column sets and vocabularies live with the stage that uses them.
//
// Conventions shared by all rules:
//   - nil and a missing key are both null
//   - numeric values are float64 (see Coerce)
//   - rules mutate records in place and may return a shorter slice
package builtin
