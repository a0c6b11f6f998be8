// Package mode classifies messages as chat or execution and applies the caller's
// execution policy to that classification.
package mode
