package logic

import (
	"errors"
	"testing"
)

func TestNewLineMap(t *testing.T) {
	lm, err := NewLineMap(map[int]Action{22: ActionStop, 9: ActionForwards, 4: ActionAssistant})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a, ok := lm.Action(22); !ok || a != ActionStop {
		t.Errorf("line 22: got (%s, %v), want (stop, true)", a, ok)
	}
	if a, ok := lm.Action(9); !ok || a != ActionForwards {
		t.Errorf("line 9: got (%s, %v), want (forwards, true)", a, ok)
	}
	if _, ok := lm.Action(10); ok {
		t.Error("line 10 should be unmapped")
	}
	if _, ok := lm.Action(-1); ok {
		t.Error("negative line should be unmapped")
	}
	if _, ok := lm.Action(MaxLines); ok {
		t.Error("out of range line should be unmapped")
	}

	want := uint32(1<<22 | 1<<9 | 1<<4)
	if lm.Mask() != want {
		t.Errorf("mask: got %#x, want %#x", lm.Mask(), want)
	}

	lines := lm.Lines()
	if len(lines) != 3 || lines[0] != 4 || lines[1] != 9 || lines[2] != 22 {
		t.Errorf("lines should be ascending, got %v", lines)
	}

	if line, ok := lm.Line(ActionForwards); !ok || line != 9 {
		t.Errorf("Line(forwards): got (%d, %v), want (9, true)", line, ok)
	}
	if _, ok := lm.Line(ActionTalk); ok {
		t.Error("talk should not be bound")
	}
}

func TestNewLineMapErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines map[int]Action
	}{
		{"empty", map[int]Action{}},
		{"out of range", map[int]Action{32: ActionStop}},
		{"negative", map[int]Action{-1: ActionStop}},
		{"interrogate", map[int]Action{3: ActionInterrogate}},
		{"duplicate action", map[int]Action{9: ActionForwards, 10: ActionForwards}},
		{"two assistant lines", map[int]Action{4: ActionAssistant, 5: ActionAssistant}},
		{"invalid value", map[int]Action{4: Action(99)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLineMap(tt.lines); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions() {
		got, err := ParseAction(a.String())
		if err != nil {
			t.Errorf("ParseAction(%q): %v", a.String(), err)
			continue
		}
		if got != a {
			t.Errorf("ParseAction(%q): got %s", a.String(), got)
		}
	}

	if got, err := ParseAction("  Pick_Up "); err != nil || got != ActionPickUp {
		t.Errorf("ParseAction should trim and lowercase, got (%s, %v)", got, err)
	}

	for _, name := range []string{"interrogate", "", "jump", "pick up"} {
		if _, err := ParseAction(name); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("ParseAction(%q): expected ErrUnknownAction, got %v", name, err)
		}
	}
}

func TestActionsExcludesInterrogate(t *testing.T) {
	all := Actions()
	if len(all) != 9 {
		t.Fatalf("expected 9 requestable actions, got %d", len(all))
	}
	for _, a := range all {
		if a == ActionInterrogate {
			t.Error("interrogate must not be requestable")
		}
	}
}

func TestMechanical(t *testing.T) {
	if ActionInterrogate.Mechanical() || ActionAssistant.Mechanical() {
		t.Error("pseudo-actions must not be mechanical")
	}
	for a := ActionStop; a <= ActionTalk; a++ {
		if !a.Mechanical() {
			t.Errorf("%s should be mechanical", a)
		}
	}
}

func TestParsePhrase(t *testing.T) {
	tests := map[string]Action{
		"stop":       ActionStop,
		"Backwards":  ActionReverse,
		"turn left":  ActionRotateLeft,
		"right":      ActionRotateRight,
		" pick up ":  ActionPickUp,
		"put down":   ActionPutDown,
		"forwards":   ActionForwards,
		"TURN RIGHT": ActionRotateRight,
		"reverse":    ActionReverse,
		"left":       ActionRotateLeft,
		"turn right": ActionRotateRight,
	}
	for text, want := range tests {
		got, ok := ParsePhrase(text)
		if !ok || got != want {
			t.Errorf("ParsePhrase(%q): got (%s, %v), want %s", text, got, ok, want)
		}
	}

	if _, ok := ParsePhrase("power off"); ok {
		t.Error("system phrases are not actions")
	}
}

func TestStringers(t *testing.T) {
	if ActionRotateLeft.String() != "rotate_left" {
		t.Errorf("got %q", ActionRotateLeft.String())
	}
	if Action(42).String() != "action(42)" {
		t.Errorf("got %q", Action(42).String())
	}
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Error("unexpected level strings")
	}
	if (Command{Kind: CommandSetSpeed, Speed: -100}).String() != "speed=-100" {
		t.Error("unexpected command string")
	}
}
