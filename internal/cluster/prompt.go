package cluster

import (
	"fmt"
	"strings"
)

// systemPrompt is the fixed instruction sent with every chunk.
const systemPrompt = `You group a developer's pull requests and code reviews into workstreams.

A workstream is one coherent body of work (a feature, a migration, an
incident, ongoing maintenance of one area). Give each a short title, an
optional one-sentence summary, and a few lowercase tags.

Return ONLY strict JSON, no prose, in exactly this shape:
{"workstreams": [{"title": "...", "summary": "...", "tags": ["..."], "event_indices": [0, 1], "receipt_indices": [0]}]}

Rules:
- Every event index must be assigned to exactly one workstream.
- receipt_indices must be a subset of that workstream's event_indices, at most 10,
  choosing the events that best evidence the work.
- Use only the indices listed in the input.`

// userPrompt renders one chunk of event lines with chunk-local indices.
func userPrompt(lines []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Events (%d total, indices 0 to %d):\n", len(lines), len(lines)-1)
	for i, line := range lines {
		sb.WriteString(numberedLine(i, line))
		sb.WriteByte('\n')
	}
	return sb.String()
}
