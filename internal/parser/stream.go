package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Event type tags the stream parser assigns special meaning to. Everything
// else is retained in raw_events but otherwise ignored.
const (
	eventTypeSystem    = "system"
	eventTypeAssistant = "assistant"
	eventTypeResult    = "result"
)

// StreamJSONParser handles agents that emit one JSON object per line
// (stream-json / JSONL mode). Structured events are typically interleaved
// with banner and diagnostic lines on the same stream, so every line that is
// not a decodable JSON object is skipped silently.
type StreamJSONParser struct {
	name string
	cli  string
	// versionKey is the system-event field carrying the CLI version
	// (e.g. "qwen_code_version"). Empty disables version harvesting.
	versionKey string
}

var _ Parser = (*StreamJSONParser)(nil)

// NewStreamJSONParser creates a stream-json parser.
// name is the parser identifier, cli the human-readable CLI name used in
// messages, versionKey the optional system-event version field.
func NewStreamJSONParser(name, cli, versionKey string) *StreamJSONParser {
	return &StreamJSONParser{name: name, cli: cli, versionKey: versionKey}
}

// Name returns the parser identifier.
func (p *StreamJSONParser) Name() string {
	return p.name
}

// Parse decodes the JSONL stream and selects content in strict priority
// order: terminal result text, last assistant message, collected error
// messages, preserved stderr, failure. The priority reflects decreasing
// confidence; a structured final result is authoritative, the assistant's
// last visible message is the best proxy when the stream was cut short.
func (p *StreamJSONParser) Parse(stdout, stderr string) (*ParsedResponse, error) {
	if strings.TrimSpace(stdout) == "" {
		return nil, &ParseError{Reason: fmt.Sprintf("%s returned empty stdout while stream-json output was expected", p.cli)}
	}

	var (
		events        []map[string]any
		resultMsg     map[string]any
		resultLine    string
		lastAssistant map[string]any
		systemMsg     map[string]any
		errorMsgs     []string
	)

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// Interleaved banner/log text is expected; drop it.
			continue
		}

		events = append(events, event)

		// Last event of each recognized type wins.
		switch event["type"] {
		case eventTypeResult:
			resultMsg = event
			resultLine = line
		case eventTypeAssistant:
			lastAssistant = event
		case eventTypeSystem:
			systemMsg = event
		}
	}

	metadata := map[string]any{"raw_events": events}

	if systemMsg != nil {
		metadata["session_id"] = systemMsg["session_id"]
		metadata["model"] = systemMsg["model"]
		if p.versionKey != "" {
			if version, ok := systemMsg[p.versionKey]; ok {
				metadata["cli_version"] = version
			}
		}
	}

	// Preferred: content from the terminal result event.
	if resultMsg != nil {
		isError, _ := resultMsg["is_error"].(bool)
		metadata["is_error"] = isError
		metadata["num_turns"] = resultMsg["num_turns"]
		metadata["duration_ms"] = resultMsg["duration_ms"]
		metadata["duration_api_ms"] = resultMsg["duration_api_ms"]

		if usage, ok := resultMsg["usage"].(map[string]any); ok {
			metadata["usage"] = usage
		}

		if modelUsage, ok := resultMsg["modelUsage"].(map[string]any); ok && len(modelUsage) > 0 {
			metadata["model_usage"] = modelUsage
			// The set is typically single-keyed; record the first key in
			// stream order as the model that actually ran.
			if first, ok := firstObjectKey(resultLine, "modelUsage"); ok {
				metadata["model_used"] = first
			}
		}

		if denials, ok := resultMsg["permission_denials"].([]any); ok && len(denials) > 0 {
			metadata["permission_denials"] = denials
		}

		if isError {
			if errorInfo, ok := resultMsg["error"].(map[string]any); ok {
				msg, ok := errorInfo["message"].(string)
				if !ok {
					msg = "Unknown error"
				}
				errorMsgs = append(errorMsgs, msg)
				metadata["error"] = errorInfo
			}
		}

		if text, ok := resultMsg["result"].(string); ok && strings.TrimSpace(text) != "" {
			attachStderr(metadata, stderr)
			return &ParsedResponse{Content: strings.TrimSpace(text), Metadata: metadata}, nil
		}
	}

	// Fallback: text extracted from the last assistant message.
	if lastAssistant != nil {
		if content := extractAssistantText(lastAssistant); content != "" {
			attachStderr(metadata, stderr)
			return &ParsedResponse{Content: content, Metadata: metadata}, nil
		}
	}

	// Explicit error text beats silence.
	if len(errorMsgs) > 0 {
		attachStderr(metadata, stderr)
		return &ParsedResponse{Content: strings.Join(errorMsgs, "\n"), Metadata: metadata}, nil
	}

	// Last resort before failure: preserve stderr behind a placeholder.
	if stderrText := strings.TrimSpace(stderr); stderrText != "" {
		metadata[MetadataStderr] = stderrText
		return &ParsedResponse{
			Content:  fmt.Sprintf("%s returned no textual result. Raw stderr was preserved for troubleshooting.", p.cli),
			Metadata: metadata,
		}, nil
	}

	return nil, &ParseError{Reason: fmt.Sprintf("%s stream-json output did not contain a result or assistant message", p.cli)}
}

// extractAssistantText walks the nested message/content-block structure of an
// assistant event. Blocks of type "text" contribute their trimmed text;
// blocks of type "thinking" contribute theirs wrapped as "[Thinking: ...]".
// Contributing parts are joined by a blank line in block order.
func extractAssistantText(assistantMsg map[string]any) string {
	message, ok := assistantMsg["message"].(map[string]any)
	if !ok {
		return ""
	}

	blocks, ok := message["content"].([]any)
	if !ok {
		return ""
	}

	var parts []string
	for _, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		case "thinking":
			if thinking, ok := block["thinking"].(string); ok && strings.TrimSpace(thinking) != "" {
				parts = append(parts, fmt.Sprintf("[Thinking: %s]", strings.TrimSpace(thinking)))
			}
		}
	}

	return strings.Join(parts, "\n\n")
}

// attachStderr stores trimmed stderr under the reserved metadata key when
// non-empty.
func attachStderr(metadata map[string]any, stderr string) {
	if stderrText := strings.TrimSpace(stderr); stderrText != "" {
		metadata[MetadataStderr] = stderrText
	}
}

// firstObjectKey returns the first key, in document order, of the object
// stored under field at the top level of the JSON object in line. Decoded Go
// maps do not preserve key order, so the raw line is re-tokenized.
func firstObjectKey(line, field string) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))

	// Consume the opening brace of the top-level object.
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return "", false
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, ok := keyTok.(string)
		if !ok {
			return "", false
		}

		if key != field {
			// Skip this key's value entirely.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return "", false
			}
			continue
		}

		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return "", false
		}
		innerTok, err := dec.Token()
		if err != nil {
			return "", false
		}
		inner, ok := innerTok.(string)
		return inner, ok
	}

	return "", false
}
