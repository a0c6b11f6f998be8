// Package engine runs agent turns against a model backend.
//
// Stub echoes the message and needs no credentials. OpenAI drives the chat
// completions API, exposing registry tools plus three narration functions
// (plan_narrative, narration, summary) whose arguments surface as Updates
// instead of being executed.
package engine
