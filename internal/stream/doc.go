// Package stream runs chat and invoke requests against an agent.
//
// # Lifecycle
//
// A streamed run always opens with a mode event and closes with done:
//
//	mode -> [step_start -> (tool_start, tool_result, output_delta, ...)* -> step_end] -> done
//
// Chat runs stream output_delta only, with tools disabled. Execution runs wrap
// the agent in a single step and translate engine updates into tool, narration
// and output events. While a step is active and nothing has been emitted for the
// heartbeat interval, a heartbeat event is sent.
//
// When the message asks for execution but the caller's policy is deny, the run
// sends ConfirmationPrompt and never calls the agent.
//
// # Failures
//
// Failures close the active step with outcome failed and emit an error event
// carrying the code and a redacted, client-safe message. Raw errors are logged.
//
// Every run is audited once it ends, including failed and cancelled runs.
package stream
