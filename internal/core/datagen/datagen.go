package datagen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

var ErrNotArray = errors.New("generated dataset is not a JSON array")

// Record is one instruction tuning sample in the alpaca layout the trainer
// consumes.
type Record struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

type Generator struct {
	llm        LLM
	numRecords int
}

func NewGenerator(llm LLM, numRecords int) *Generator {
	if numRecords <= 0 {
		numRecords = DefaultRecordCount
	}
	return &Generator{llm: llm, numRecords: numRecords}
}

func (g *Generator) Generate(ctx context.Context, topic string) ([]Record, error) {
	system := new(strings.Builder)
	if err := systemPromptTmpl.Execute(system, systemPromptFields{NumRecords: g.numRecords}); err != nil {
		return nil, fmt.Errorf("error rendering system prompt: %w", err)
	}

	user := new(strings.Builder)
	if err := userPromptTmpl.Execute(user, userPromptFields{Topic: topic}); err != nil {
		return nil, fmt.Errorf("error rendering user prompt: %w", err)
	}

	slog.Info("generating dataset", "topic", topic, "records", g.numRecords)

	content, err := g.llm.Generate(ctx, system.String(), user.String())
	if err != nil {
		return nil, err
	}

	records, err := ParseRecords(content)
	if err != nil {
		slog.Error("error parsing generated dataset", "topic", topic, "content", truncate(content, 500), "error", err)
		return nil, err
	}

	slog.Info("generated dataset", "topic", topic, "records", len(records))
	return records, nil
}

// ParseRecords decodes a model response into records. A surrounding markdown
// code fence is removed first.
func ParseRecords(content string) ([]Record, error) {
	content = StripCodeFence(content)

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("error decoding generated dataset: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return nil, ErrNotArray
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("error decoding generated records: %w", err)
	}
	return records, nil
}

func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// Filename picks the stored name of a generated dataset. A custom name only
// gets a .json suffix; otherwise the first ten characters of the topic are
// kept, minus anything that is not a letter, digit, space, dash or underscore.
func Filename(topic string, custom *string) string {
	if custom != nil && *custom != "" {
		if strings.HasSuffix(*custom, ".json") {
			return *custom
		}
		return *custom + ".json"
	}

	runes := []rune(topic)
	if len(runes) > 10 {
		runes = runes[:10]
	}

	kept := make([]rune, 0, len(runes))
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			kept = append(kept, r)
		}
	}

	name := strings.TrimSpace(string(kept))
	if name == "" {
		name = "dataset"
	}
	return name + ".json"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
