package extraction

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/hivemind-db/hivemind/internal/types"
)

func TestExtractJSONPlain(t *testing.T) {
	raw := `{"facts": [], "entities": [], "relationships": []}`
	if got := extractJSON(raw); got != raw {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtractJSONCodeBlock(t *testing.T) {
	input := "```json\n{\"facts\": []}\n```"
	if got := extractJSON(input); got != `{"facts": []}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtractJSONBareBlock(t *testing.T) {
	input := "```\n{\"facts\": []}\n```"
	if got := extractJSON(input); got != `{"facts": []}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestParseResult(t *testing.T) {
	raw := `{
		"facts": [{
			"content": "User prefers Rust over Python",
			"memory_type": "fact",
			"confidence": 0.95,
			"tags": ["preferences", "languages"],
			"operation": "add",
			"updates_memory_id": null
		}],
		"entities": [{
			"name": "Rust",
			"entity_type": "Language",
			"description": "Systems programming language"
		}],
		"relationships": [{
			"source_entity": "User",
			"target_entity": "Rust",
			"relation_type": "prefers"
		}]
	}`
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Facts) != 1 || result.Facts[0].Operation != OpAdd {
		t.Errorf("facts = %+v", result.Facts)
	}
	if result.Facts[0].Content != "User prefers Rust over Python" {
		t.Errorf("content = %q", result.Facts[0].Content)
	}
	if len(result.Entities) != 1 || len(result.Relationships) != 1 {
		t.Errorf("entities/relationships = %d/%d", len(result.Entities), len(result.Relationships))
	}
}

func TestAvailability(t *testing.T) {
	log := slog.Default()
	if !New(Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o"}, log).Available() {
		t.Error("keyed provider should be available")
	}
	if !New(Config{Provider: "ollama", Model: "llama3"}, log).Available() {
		t.Error("local provider should be available without a key")
	}
	if New(Config{Provider: "openai", Model: "gpt-4o"}, log).Available() {
		t.Error("remote provider without key should be unavailable")
	}
	if !New(Config{Provider: "anthropic", APIKey: "sk-ant", Model: "claude-sonnet-4-20250514"}, log).Available() {
		t.Error("anthropic with key should be available")
	}
}

func TestProviderBaseURLMapping(t *testing.T) {
	log := slog.Default()
	cases := map[string]string{
		"openai":                  "https://api.openai.com/v1",
		"ollama":                  "http://localhost:11434/v1",
		"codegate":                "http://localhost:9212/v1",
		"http://my-proxy:8080/v1": "http://my-proxy:8080/v1",
		"mystery":                 "https://api.openai.com/v1",
	}
	for provider, want := range cases {
		p := New(Config{Provider: provider, Model: "m"}, log)
		if p.baseURL != want {
			t.Errorf("provider %q base URL = %q, want %q", provider, p.baseURL, want)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	msgs := []types.ConversationMessage{
		{Role: "user", Content: "I switched to Rust"},
		{Role: "assistant", Content: "Noted"},
	}
	existing := []types.Memory{{ID: 4, Content: "User likes Python"}}

	prompt := buildUserPrompt(msgs, existing)
	if !strings.Contains(prompt, "user: I switched to Rust") {
		t.Errorf("prompt missing conversation: %q", prompt)
	}
	if !strings.Contains(prompt, "[#4] User likes Python") {
		t.Errorf("prompt missing existing memory: %q", prompt)
	}

	bare := buildUserPrompt(msgs, nil)
	if strings.Contains(bare, "Existing memories") {
		t.Error("prompt should omit existing section when empty")
	}
}
