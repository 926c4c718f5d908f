// Package classfile reads compiled class files into an in-memory image:
// constant pool, field and method tables, and each method's code block.
// Only the structure needed to execute the integer subset is retained;
// attributes other than Code are parsed past and dropped.
package classfile

import (
	"errors"
	"fmt"
	"os"
)

// Magic is the four-byte signature every class file starts with.
const Magic = 0xCAFEBABE

// ConstKind is the tag byte of a constant-pool entry.
type ConstKind uint8

const (
	KindUtf8               ConstKind = 1
	KindInteger            ConstKind = 3
	KindFloat              ConstKind = 4
	KindLong               ConstKind = 5
	KindDouble             ConstKind = 6
	KindClass              ConstKind = 7
	KindString             ConstKind = 8
	KindFieldref           ConstKind = 9
	KindMethodref          ConstKind = 10
	KindInterfaceMethodref ConstKind = 11
	KindNameAndType        ConstKind = 12
)

// Constant is one constant-pool entry. Which fields are meaningful
// depends on Kind: Utf8 uses Str, Integer uses Int, the reference kinds
// use Ref1/Ref2 (pool indices, 1-based as on the wire).
type Constant struct {
	Kind ConstKind
	Str  string
	Int  int32
	Ref1 uint16
	Ref2 uint16
}

// Method is one method of a class, with its Code attribute flattened in.
// A method without a Code attribute (abstract or native) has nil Code.
type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	MaxStack    uint16
	MaxLocals   uint16
	Code        []byte
}

// Field is one field of a class. Fields carry no runtime state here,
// and getstatic operands are not resolved against this table.
type Field struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
}

// Class is the parsed image of a single class file.
type Class struct {
	Minor, Major uint16
	AccessFlags  uint16
	Name         string
	Super        string

	// Pool holds the constant pool 0-indexed: Pool[i] is wire entry i+1.
	// Long and double entries occupy two slots; the second is zero-valued.
	Pool []Constant

	Interfaces []string
	Fields     []Field
	Methods    []Method
}

var (
	// ErrBadMagic means the file does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("classfile: bad magic")

	// ErrTruncated means the file ended inside a structure.
	ErrTruncated = errors.New("classfile: truncated")
)

// ParseFile reads and parses the class file at path.
func ParseFile(path string) (*Class, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classfile: %w", err)
	}
	return Parse(buf)
}

// Parse decodes a class file image from buf.
func Parse(buf []byte) (*Class, error) {
	r := &reader{buf: buf}
	c := &Class{}

	magic := r.u4()
	if r.err != nil {
		return nil, r.err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	c.Minor = r.u2()
	c.Major = r.u2()

	if err := parsePool(r, c); err != nil {
		return nil, err
	}

	c.AccessFlags = r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	var err error
	if c.Name, err = c.className(thisIdx); err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if c.Super, err = c.className(superIdx); err != nil {
			return nil, err
		}
	}

	ifaceCount := int(r.u2())
	for i := 0; i < ifaceCount && r.err == nil; i++ {
		name, err := c.className(r.u2())
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, name)
	}

	if err := parseFields(r, c); err != nil {
		return nil, err
	}
	if err := parseMethods(r, c); err != nil {
		return nil, err
	}
	skipAttributes(r)

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parsePool(r *reader, c *Class) error {
	count := int(r.u2()) // wire count is pool size + 1
	if r.err != nil {
		return r.err
	}
	c.Pool = make([]Constant, 0, count-1)
	for len(c.Pool) < count-1 {
		tag := ConstKind(r.u1())
		if r.err != nil {
			return r.err
		}
		var e Constant
		e.Kind = tag
		switch tag {
		case KindUtf8:
			n := int(r.u2())
			e.Str = string(r.bytes(n))
		case KindInteger:
			e.Int = int32(r.u4())
		case KindFloat:
			r.u4()
		case KindLong, KindDouble:
			r.u4()
			r.u4()
		case KindClass, KindString:
			e.Ref1 = r.u2()
		case KindFieldref, KindMethodref, KindInterfaceMethodref, KindNameAndType:
			e.Ref1 = r.u2()
			e.Ref2 = r.u2()
		default:
			return fmt.Errorf("classfile: unknown constant tag %d at pool entry %d", tag, len(c.Pool)+1)
		}
		c.Pool = append(c.Pool, e)
		if tag == KindLong || tag == KindDouble {
			// second slot of an 8-byte constant stays unusable
			c.Pool = append(c.Pool, Constant{})
		}
	}
	return r.err
}

func parseFields(r *reader, c *Class) error {
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		var f Field
		f.AccessFlags = r.u2()
		name, err := c.utf8(r.u2())
		if err != nil {
			return err
		}
		desc, err := c.utf8(r.u2())
		if err != nil {
			return err
		}
		f.Name, f.Descriptor = name, desc
		skipAttributes(r)
		c.Fields = append(c.Fields, f)
	}
	return r.err
}

func parseMethods(r *reader, c *Class) error {
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		var m Method
		m.AccessFlags = r.u2()
		name, err := c.utf8(r.u2())
		if err != nil {
			return err
		}
		desc, err := c.utf8(r.u2())
		if err != nil {
			return err
		}
		m.Name, m.Descriptor = name, desc

		attrCount := int(r.u2())
		for a := 0; a < attrCount && r.err == nil; a++ {
			attrName, err := c.utf8(r.u2())
			if err != nil {
				return err
			}
			attrLen := int(r.u4())
			if attrName != "Code" {
				r.bytes(attrLen)
				continue
			}
			m.MaxStack = r.u2()
			m.MaxLocals = r.u2()
			codeLen := int(r.u4())
			m.Code = append([]byte(nil), r.bytes(codeLen)...)
			// exception table and nested attributes
			excCount := int(r.u2())
			r.bytes(excCount * 8)
			skipAttributes(r)
		}
		c.Methods = append(c.Methods, m)
	}
	return r.err
}

func skipAttributes(r *reader) {
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		r.u2() // name index
		n := int(r.u4())
		r.bytes(n)
	}
}

// utf8 returns the Utf8 constant at the 1-based pool index idx.
func (c *Class) utf8(idx uint16) (string, error) {
	e, err := c.Constant(idx)
	if err != nil {
		return "", err
	}
	if e.Kind != KindUtf8 {
		return "", fmt.Errorf("classfile: pool entry %d is tag %d, want Utf8", idx, e.Kind)
	}
	return e.Str, nil
}

// className resolves a Class constant to its name string.
func (c *Class) className(idx uint16) (string, error) {
	e, err := c.Constant(idx)
	if err != nil {
		return "", err
	}
	if e.Kind != KindClass {
		return "", fmt.Errorf("classfile: pool entry %d is tag %d, want Class", idx, e.Kind)
	}
	return c.utf8(e.Ref1)
}

// Constant returns the pool entry at the 1-based wire index idx.
func (c *Class) Constant(idx uint16) (Constant, error) {
	if idx == 0 || int(idx) > len(c.Pool) {
		return Constant{}, fmt.Errorf("classfile: constant pool index %d out of range (pool size %d)", idx, len(c.Pool))
	}
	return c.Pool[idx-1], nil
}

// Integer returns the 32-bit integer constant at the 1-based pool index
// idx.
func (c *Class) Integer(idx uint16) (int32, error) {
	e, err := c.Constant(idx)
	if err != nil {
		return 0, err
	}
	if e.Kind != KindInteger {
		return 0, fmt.Errorf("classfile: pool entry %d is tag %d, want Integer", idx, e.Kind)
	}
	return e.Int, nil
}

// Method returns the method with the given name and descriptor, or nil
// if the class has none.
func (c *Class) Method(name, descriptor string) *Method {
	for i := range c.Methods {
		m := &c.Methods[i]
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// MethodByRef resolves a Methodref pool entry to a method of this class.
// Cross-class references fail: the image holds a single class.
func (c *Class) MethodByRef(idx uint16) (*Method, error) {
	e, err := c.Constant(idx)
	if err != nil {
		return nil, err
	}
	if e.Kind != KindMethodref {
		return nil, fmt.Errorf("classfile: pool entry %d is tag %d, want Methodref", idx, e.Kind)
	}
	nt, err := c.Constant(e.Ref2)
	if err != nil {
		return nil, err
	}
	if nt.Kind != KindNameAndType {
		return nil, fmt.Errorf("classfile: pool entry %d is tag %d, want NameAndType", e.Ref2, nt.Kind)
	}
	name, err := c.utf8(nt.Ref1)
	if err != nil {
		return nil, err
	}
	desc, err := c.utf8(nt.Ref2)
	if err != nil {
		return nil, err
	}
	m := c.Method(name, desc)
	if m == nil {
		return nil, fmt.Errorf("classfile: method %s%s not found in class %s", name, desc, c.Name)
	}
	return m, nil
}

// reader is a cursor over the raw file image. The first out-of-range
// read latches err; subsequent reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

func (r *reader) u4() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
