// Package prompts loads agent prompt templates from a directory.
//
// A template lives in <agent>.yaml or <agent>.toml and carries the model, the
// system instructions and an input template rendered with text/template against
// the request message and caller context. Every file is validated against a JSON
// schema when loaded. Agents without a file get a built-in fallback template.
package prompts
