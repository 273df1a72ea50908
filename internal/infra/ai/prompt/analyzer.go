package prompt

import "fmt"

// GetSystemPrompt returns the system prompt for code vulnerability
// classification. The model must answer with the same JSON schema the
// dedicated inference service uses: {"label": "VULN"|"SAFE", "confidence": 0..1}.
func GetSystemPrompt() string {
	return `You are a static security analyst for source code.
Classify the given code for exploitable security vulnerabilities
(memory corruption, injection, insecure deserialization, path traversal,
hardcoded credentials, unsafe system calls and similar).

Respond with a single JSON object and nothing else:
{"label": "VULN" or "SAFE", "confidence": <number between 0 and 1>}

"label" is "VULN" only when the code contains a concrete vulnerability,
not merely bad style. "confidence" expresses how certain you are of the label.`
}

// GetUserPrompt wraps one unit of source text for classification.
func GetUserPrompt(code string) string {
	return fmt.Sprintf("Classify this code:\n\n```\n%s\n```", code)
}
