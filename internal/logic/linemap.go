package logic

import (
	"errors"
	"fmt"
	"sort"
)

// MaxLines is the number of lines a notification bitmask can describe.
const MaxLines = 32

// ErrUnmappedLine is returned when an edge arrives for a line with no
// LineMap entry. It means the configuration does not match the wiring.
var ErrUnmappedLine = errors.New("unmapped line")

// LineMap binds physical line numbers to actions. Immutable after construction.
type LineMap struct {
	actions [MaxLines]Action
	mask    uint32
}

// NewLineMap validates and builds a LineMap. Every mechanical action may be
// bound to at most one line, and at most one line may be the assistant line.
func NewLineMap(lines map[int]Action) (*LineMap, error) {
	if len(lines) == 0 {
		return nil, errors.New("line map is empty")
	}
	lm := &LineMap{}
	owner := make(map[Action]int)
	for _, line := range sortedKeys(lines) {
		a := lines[line]
		if line < 0 || line >= MaxLines {
			return nil, fmt.Errorf("line %d out of range [0,%d)", line, MaxLines)
		}
		if !a.Mechanical() && a != ActionAssistant {
			return nil, fmt.Errorf("line %d: %s cannot be bound to a switch", line, a)
		}
		if prev, dup := owner[a]; dup {
			return nil, fmt.Errorf("lines %d and %d both map to %s", prev, line, a)
		}
		owner[a] = line
		lm.actions[line] = a
		lm.mask |= 1 << uint(line)
	}
	return lm, nil
}

// Action returns the action bound to line.
func (lm *LineMap) Action(line int) (Action, bool) {
	if line < 0 || line >= MaxLines || lm.mask&(1<<uint(line)) == 0 {
		return 0, false
	}
	return lm.actions[line], true
}

// Line returns the line bound to a.
func (lm *LineMap) Line(a Action) (int, bool) {
	for _, line := range lm.Lines() {
		if lm.actions[line] == a {
			return line, true
		}
	}
	return 0, false
}

// Mask returns the bitmask of monitored lines.
func (lm *LineMap) Mask() uint32 {
	return lm.mask
}

// Lines returns the monitored lines in ascending order.
func (lm *LineMap) Lines() []int {
	var out []int
	for line := 0; line < MaxLines; line++ {
		if lm.mask&(1<<uint(line)) != 0 {
			out = append(out, line)
		}
	}
	return out
}

func sortedKeys(m map[int]Action) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
