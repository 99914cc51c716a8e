// Package extraction mines structured knowledge (facts, entities,
// relationships) out of conversation text with an LLM.
package extraction

import (
	"strconv"
	"strings"

	"github.com/hivemind-db/hivemind/internal/types"
)

// Operation classifies how an extracted fact relates to existing knowledge.
type Operation string

const (
	OpAdd    Operation = "add"
	OpUpdate Operation = "update"
	OpNoop   Operation = "noop"
)

// Fact is one extracted piece of knowledge.
type Fact struct {
	Content         string           `json:"content"`
	MemoryType      types.MemoryType `json:"memory_type"`
	Confidence      float64          `json:"confidence"`
	Tags            []string         `json:"tags"`
	Operation       Operation        `json:"operation"`
	UpdatesMemoryID *int64           `json:"updates_memory_id"`
}

// Entity is an extracted graph node candidate.
type Entity struct {
	Name        string `json:"name"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description,omitempty"`
}

// Relationship is an extracted edge candidate, referencing entities by
// name.
type Relationship struct {
	SourceEntity string `json:"source_entity"`
	TargetEntity string `json:"target_entity"`
	RelationType string `json:"relation_type"`
	Description  string `json:"description,omitempty"`
}

// Result is the parsed output of one extraction call.
type Result struct {
	Facts         []Fact         `json:"facts"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

const systemPrompt = `You are a knowledge extraction engine for HiveMindDB. Your job is to extract structured knowledge from conversation text.

Given a conversation, extract:
1. **Facts**: Concrete pieces of knowledge (preferences, decisions, information)
2. **Entities**: People, projects, technologies, organizations, concepts
3. **Relationships**: How entities relate to each other

For each fact, determine:
- ` + "`operation`" + `: "add" (new knowledge), "update" (modifies existing), "noop" (already known)
- ` + "`memory_type`" + `: "fact" (concrete info), "episodic" (event/experience), "procedural" (how-to), "semantic" (abstract concept)
- ` + "`confidence`" + `: 0.0-1.0 how confident you are this is accurate
- ` + "`tags`" + `: relevant categories

Respond with ONLY valid JSON in this exact format:
{
  "facts": [
    {
      "content": "the extracted fact as a clear statement",
      "memory_type": "fact",
      "confidence": 0.95,
      "tags": ["preferences", "languages"],
      "operation": "add",
      "updates_memory_id": null
    }
  ],
  "entities": [
    {
      "name": "EntityName",
      "entity_type": "Person",
      "description": "Brief description"
    }
  ],
  "relationships": [
    {
      "source_entity": "SourceName",
      "target_entity": "TargetName",
      "relation_type": "maintains",
      "description": "Brief description"
    }
  ]
}`

// buildUserPrompt formats the conversation and, when present, the existing
// memories the model should check for conflicts. Context is capped at 20
// memories.
func buildUserPrompt(messages []types.ConversationMessage, existing []types.Memory) string {
	var b strings.Builder
	b.WriteString("Extract knowledge from this conversation:\n\n")
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}

	if len(existing) > 0 {
		b.WriteString("\n\nExisting memories (check for conflicts/updates):\n")
		limit := len(existing)
		if limit > 20 {
			limit = 20
		}
		for i := 0; i < limit; i++ {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("  [#")
			b.WriteString(strconv.FormatInt(existing[i].ID, 10))
			b.WriteString("] ")
			b.WriteString(existing[i].Content)
		}
	}
	return b.String()
}

// extractJSON strips markdown code fences from an LLM response.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "```json"); start >= 0 {
		after := trimmed[start+len("```json"):]
		if end := strings.Index(after, "```"); end >= 0 {
			return strings.TrimSpace(after[:end])
		}
	}
	if start := strings.Index(trimmed, "```"); start >= 0 {
		after := trimmed[start+3:]
		if end := strings.Index(after, "```"); end >= 0 {
			return strings.TrimSpace(after[:end])
		}
	}
	return trimmed
}
