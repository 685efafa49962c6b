package history

import "github.com/ChristofferGreen/PathSpace-sub002/pathspace"

// classifyUnsupported reports why data cannot be captured by history, or
// ok=true when it can. The three rejection categories mirror the payload
// shapes the inner space can hold that a byte-oriented journal or
// snapshot cannot faithfully reverse.
func classifyUnsupported(data pathspace.NodeData) (reason string, ok bool) {
	switch {
	case data.Nested:
		return unsupportedNestedMessage, false
	case data.Executable:
		return unsupportedExecutionMessage, false
	case data.Unserializable:
		return unsupportedSerializationMessage, false
	default:
		return "", true
	}
}

