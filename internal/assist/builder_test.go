package assist

import (
	"strings"
	"testing"
)

func TestBuildMessages_EmptyPrompt(t *testing.T) {
	if _, err := BuildMessages("   \t\n ", "", ""); err != ErrEmptyPrompt {
		t.Errorf("Expected ErrEmptyPrompt, got %v", err)
	}
	if _, err := BuildMessages("", "", ""); err != ErrEmptyPrompt {
		t.Errorf("Expected ErrEmptyPrompt, got %v", err)
	}
}

func TestBuildMessages_TrimsPrompt(t *testing.T) {
	msgs, err := BuildMessages("  What is 2+2?  ", "", "")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" {
		t.Errorf("Expected trailing user message, got role %s", last.Role)
	}
	if last.Content != "What is 2+2?" {
		t.Errorf("Expected trimmed prompt, got %q", last.Content)
	}
}

func TestBuildMessages_SystemPreamble(t *testing.T) {
	msgs, err := BuildMessages("hi", "", "")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != DefaultSystemMessage {
		t.Errorf("Expected default system preamble, got %+v", msgs[0])
	}

	msgs, err = BuildMessages("hi", "", "Reply with 'ok'")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	if msgs[0].Content != "Reply with 'ok'" {
		t.Errorf("Expected system override, got %q", msgs[0].Content)
	}
}

func TestBuildMessages_StructuredContext(t *testing.T) {
	msgs, err := BuildMessages("analyze this", `{"amount": 1000}`, "")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	ctx := msgs[1]
	if ctx.Role != "system" {
		t.Errorf("Expected context as system message, got role %s", ctx.Role)
	}
	if !strings.HasPrefix(ctx.Content, "Context: ") {
		t.Errorf("Expected Context: marker, got %q", ctx.Content)
	}
	if !strings.Contains(ctx.Content, `"amount":1000`) {
		t.Errorf("Expected serialized structured value, got %q", ctx.Content)
	}
}

func TestBuildMessages_PlainTextContextWrapped(t *testing.T) {
	msgs, err := BuildMessages("analyze this", "hello", "")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	ctx := msgs[1]
	if !strings.Contains(ctx.Content, "Context: ") {
		t.Errorf("Expected Context: marker for plain text, got %q", ctx.Content)
	}
	if !strings.Contains(ctx.Content, `{"text":"hello"}`) {
		t.Errorf("Expected wrapped plain text, got %q", ctx.Content)
	}
}

func TestBuildMessages_NoContext(t *testing.T) {
	msgs, err := BuildMessages("hi", "", "")
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}
	for _, m := range msgs {
		if strings.Contains(m.Content, "Context: ") {
			t.Errorf("Unexpected context message: %q", m.Content)
		}
	}
}
