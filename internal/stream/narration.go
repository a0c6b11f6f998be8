// ABOUTME: User-safe strings shown while tools run and the execution confirmation prompt
// ABOUTME: Strings are looked up by tool id so tool output never reaches the client

package stream

// ConfirmationPrompt is sent instead of running tools when the caller denied execution.
const ConfirmationPrompt = "I can run tools or simulations to complete this request. Should I proceed with execution?"

// ToolPurpose is the tool_start text for toolID.
func ToolPurpose(toolID string) string {
	switch toolID {
	case "docs-search":
		return "Calling docs-search to retrieve documentation."
	case "ui-navigator":
		return "Calling ui-navigator to fetch navigation steps."
	case "rbac-inspector":
		return "Calling rbac-inspector to check permissions."
	default:
		return "Calling " + toolID + " to gather supporting information."
	}
}

// ToolSummary is the tool_result text for toolID.
func ToolSummary(toolID string) string {
	switch toolID {
	case "docs-search":
		return "Docs search completed."
	case "ui-navigator":
		return "Navigation lookup completed."
	case "rbac-inspector":
		return "Permission check completed."
	default:
		return toolID + " completed."
	}
}

// ToolFailedSummary is the tool_result summary when a call returned an error
// to the model.
func ToolFailedSummary(toolID string) string {
	switch toolID {
	case "docs-search":
		return "Docs search did not return results."
	case "ui-navigator":
		return "Navigation lookup failed."
	case "rbac-inspector":
		return "Permission check failed."
	default:
		return toolID + " failed."
	}
}

// StepLabel labels the single step of an execution run.
func StepLabel(agentID string) string {
	return "Run " + agentID + " agent"
}
