// Package prompt builds the system and user prompts for task generation.
// The generation core treats these as opaque strings.
package prompt

import (
	"fmt"
	"strings"
)

const systemTemplate = `You are a senior technical project planner. You turn product requirement documents into an ordered, dependency-aware implementation task list.

Respond with a single JSON object and nothing else. No prose, no markdown fences. The object has exactly this shape:

{
  "tasks": [
    {
      "id": 1,
      "title": "Short imperative title",
      "description": "One or two sentences describing the outcome",
      "status": "pending",
      "dependencies": [],
      "priority": "high",
      "details": "Concrete implementation guidance",
      "testStrategy": "How to verify this task is done"
    }
  ]
}

Rules:
- Produce exactly %d tasks.
- Number ids sequentially from 1.
- dependencies is an array of integer ids of tasks that must finish first. Reference only lower ids.
- priority is one of "high", "medium" or "low".
- Order tasks so the project can be executed top to bottom.`

// System returns the system prompt for a generation targeting numTasks tasks
func System(numTasks int) string {
	return fmt.Sprintf(systemTemplate, numTasks)
}

// User wraps the requirements document with the generation instruction
func User(document string, numTasks int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following requirements document and produce %d implementation tasks as JSON.\n\n", numTasks)
	b.WriteString("--- DOCUMENT START ---\n")
	b.WriteString(document)
	if !strings.HasSuffix(document, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("--- DOCUMENT END ---")
	return b.String()
}
