// Package disasm renders the code blocks of a parsed class as
// per-method listings, for terminal output or JSON export.
package disasm

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"minijvm/pkg/classfile"
	"minijvm/pkg/op"
)

// Entry is one decoded instruction. Target is the absolute PC a branch
// resolves to, or -1 for non-branch instructions.
type Entry struct {
	PC       int    `json:"pc"`
	Mnemonic string `json:"mnemonic"`
	Operands []int  `json:"operands,omitempty"`
	Target   int    `json:"target"`
	Comment  string `json:"comment,omitempty"`
}

// Listing is the decoded code block of one method.
type Listing struct {
	Method     string  `json:"method"`
	Descriptor string  `json:"descriptor"`
	MaxStack   int     `json:"max_stack"`
	MaxLocals  int     `json:"max_locals"`
	Entries    []Entry `json:"entries"`
}

// Class builds listings for every method of c that carries code.
func Class(c *classfile.Class) ([]Listing, error) {
	var out []Listing
	for i := range c.Methods {
		m := &c.Methods[i]
		if m.Code == nil {
			continue
		}
		l, err := Method(c, m)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Method decodes the code block of m.
func Method(c *classfile.Class, m *classfile.Method) (Listing, error) {
	l := Listing{
		Method:     m.Name,
		Descriptor: m.Descriptor,
		MaxStack:   int(m.MaxStack),
		MaxLocals:  int(m.MaxLocals),
	}
	code := m.Code
	for pc := 0; pc < len(code); {
		cd := op.Code(code[pc])
		w := op.Width(cd)
		if w == 0 {
			return Listing{}, fmt.Errorf("disasm: unknown opcode 0x%02x at pc %d in %s%s", code[pc], pc, m.Name, m.Descriptor)
		}
		if pc+w > len(code) {
			return Listing{}, fmt.Errorf("disasm: truncated %s at pc %d in %s%s", op.Mnemonic(cd), pc, m.Name, m.Descriptor)
		}

		e := Entry{PC: pc, Mnemonic: op.Mnemonic(cd), Target: -1}
		switch {
		case op.IsBranch(cd):
			e.Target = pc + int(s16(code, pc+1))

		case cd == op.BIPUSH:
			e.Operands = []int{int(int8(code[pc+1]))}

		case cd == op.SIPUSH:
			e.Operands = []int{int(s16(code, pc+1))}

		case cd == op.LDC:
			idx := uint16(code[pc+1])
			e.Operands = []int{int(idx)}
			if v, err := c.Integer(idx); err == nil {
				e.Comment = fmt.Sprintf("%d", v)
			}

		case cd == op.ILOAD || cd == op.ALOAD || cd == op.ISTORE || cd == op.ASTORE:
			e.Operands = []int{int(code[pc+1])}

		case cd == op.IINC:
			e.Operands = []int{int(code[pc+1]), int(int8(code[pc+2]))}

		case cd == op.NEWARRAY:
			e.Operands = []int{int(code[pc+1])}

		case cd == op.GETSTATIC || cd == op.INVOKEVIRTUAL || cd == op.INVOKESTATIC:
			idx := u16(code, pc+1)
			e.Operands = []int{int(idx)}
			if cd == op.INVOKESTATIC {
				if callee, err := c.MethodByRef(idx); err == nil {
					e.Comment = callee.Name + callee.Descriptor
				}
			}
		}

		l.Entries = append(l.Entries, e)
		pc += w
	}
	return l, nil
}

// Text renders the listing in a javap-flavored layout.
func (l Listing) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s  (stack=%d, locals=%d)\n", l.Method, l.Descriptor, l.MaxStack, l.MaxLocals)
	for _, e := range l.Entries {
		fmt.Fprintf(&b, "  %4d: %s", e.PC, e.Mnemonic)
		if e.Target >= 0 {
			fmt.Fprintf(&b, " %d", e.Target)
		}
		for _, v := range e.Operands {
			fmt.Fprintf(&b, " %d", v)
		}
		if e.Comment != "" {
			fmt.Fprintf(&b, "  // %s", e.Comment)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteJSON writes listings as indented JSON.
func WriteJSON(w io.Writer, listings []Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

// ReadJSON reads listings written by WriteJSON.
func ReadJSON(r io.Reader) ([]Listing, error) {
	var listings []Listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, fmt.Errorf("disasm: %w", err)
	}
	return listings, nil
}

func s16(code []byte, at int) int32 {
	return int32(int16(uint16(code[at])<<8 | uint16(code[at+1])))
}

func u16(code []byte, at int) uint16 {
	return uint16(code[at])<<8 | uint16(code[at+1])
}
