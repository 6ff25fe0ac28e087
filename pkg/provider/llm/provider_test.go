package llm_test

import (
	"testing"

	"github.com/MrWong99/flowlyrics/pkg/provider/llm"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msgs []llm.Message
		want int
	}{
		{"empty", nil, 0},
		{"one short", []llm.Message{{Role: llm.RoleUser, Content: "Hello world"}}, 3 + 4},
		{"two", []llm.Message{{Content: "abcd"}, {Content: ""}}, 1 + 4 + 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := llm.EstimateTokens(tt.msgs); got != tt.want {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequestMessages(t *testing.T) {
	t.Parallel()

	req := llm.CompletionRequest{
		SystemPrompt: "You write lyrics.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "go"}},
	}
	got := llm.RequestMessages(req)
	if len(got) != 2 || got[0].Role != llm.RoleSystem || got[0].Content != "You write lyrics." {
		t.Fatalf("RequestMessages() = %+v", got)
	}
	if got[1].Content != "go" {
		t.Errorf("user message = %+v", got[1])
	}

	req.SystemPrompt = ""
	if got := llm.RequestMessages(req); len(got) != 1 {
		t.Errorf("without system prompt: %+v", got)
	}
}
