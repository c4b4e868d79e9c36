package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	keys := []string{
		"error.not_your_turn",
		"error.illegal_move",
		"error.empty_move",
		"error.malformed",
		"error.unknown_type",
		"error.already_in_game",
		"error.already_waiting",
		"error.not_in_game",
		"error.game_over",
		"error.capacity",
		"error.internal",
		"notice.waiting",
	}
	for _, k := range keys {
		if _, err := c.Render(k, nil); err != nil {
			t.Fatalf("missing catalog entry %s: %v", k, err)
		}
	}
}

func TestTextFallsBackToKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("error.no_such_key"); got != "error.no_such_key" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := []byte("error:\n  not_your_turn: \"wait for your opponent\"\n")
	if err := os.WriteFile(filepath.Join(dir, "override.yaml"), override, 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("error.not_your_turn"); got != "wait for your opponent" {
		t.Fatalf("override not applied: %q", got)
	}
	// untouched keys keep their defaults
	if got := c.Text("error.illegal_move"); got == "error.illegal_move" {
		t.Fatalf("default lost after override")
	}
}

func TestRenderWithData(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.data["test.greet"] = "hello {{.Name}}"
	got, err := c.Render("test.greet", map[string]string{"Name": "arena"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "hello arena" {
		t.Fatalf("rendered = %q", got)
	}
}
