package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// Expectation is one instruction expected in an ARM listing. Cond, when
// set, is the condition suffix the mnemonic must carry ("lo", "ne");
// Mnemonic is then compared without it.
type Expectation struct {
	Name     string
	Mnemonic string
	Cond     string
	Contains []string
	Absent   []string
}

func (e Expectation) check(line DisasmLine) error {
	mnemonic := line.Mnemonic
	if e.Cond != "" {
		if !strings.HasSuffix(mnemonic, e.Cond) {
			return fmt.Errorf("mnemonic %s lacks condition %s", mnemonic, e.Cond)
		}
		mnemonic = strings.TrimSuffix(mnemonic, e.Cond)
	}
	if e.Mnemonic != "" && mnemonic != e.Mnemonic {
		return fmt.Errorf("mnemonic %s, want %s", line.Mnemonic, e.Mnemonic+e.Cond)
	}
	for _, s := range e.Contains {
		if !line.Contains(s) {
			return fmt.Errorf("operands %q lack %q", line.Normalized, s)
		}
	}
	for _, s := range e.Absent {
		if line.Contains(s) {
			return fmt.Errorf("operands %q contain %q", line.Normalized, s)
		}
	}
	return nil
}

// VerifyExpectations matches expect against the first len(expect) lines.
// Trailing lines, usually the literal pool, are not checked.
func VerifyExpectations(t *testing.T, lines []DisasmLine, expect []Expectation) {
	t.Helper()
	if len(lines) < len(expect) {
		t.Fatalf("listing has %d instructions, want at least %d", len(lines), len(expect))
	}
	for i, e := range expect {
		if err := e.check(lines[i]); err != nil {
			t.Fatalf("%s (instruction %d): %v\n%s", e.Name, i, err, window(lines, i))
		}
	}
}

// window renders the lines around idx for failure messages.
func window(lines []DisasmLine, idx int) string {
	var sb strings.Builder
	for i := max(0, idx-2); i < min(len(lines), idx+3); i++ {
		marker := "  "
		if i == idx {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%s%3d  %s\n", marker, i, lines[i].Text)
	}
	return sb.String()
}
