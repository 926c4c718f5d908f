package disasm

import (
	"bytes"
	"os"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijvm/pkg/classfile"
	"minijvm/pkg/op"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

// loopClass builds a class whose main sums 0..9 and prints the result,
// plus a fact helper reached through the constant pool.
func loopClass() *classfile.Class {
	return &classfile.Class{
		Name: "Demo",
		Pool: []classfile.Constant{
			{Kind: classfile.KindUtf8, Str: "fact"},
			{Kind: classfile.KindUtf8, Str: "(I)I"},
			{Kind: classfile.KindNameAndType, Ref1: 1, Ref2: 2},
			{Kind: classfile.KindMethodref, Ref1: 0, Ref2: 3},
			{Kind: classfile.KindInteger, Int: 1_000_000},
		},
		Methods: []classfile.Method{
			{
				Name:       "main",
				Descriptor: "([Ljava/lang/String;)V",
				MaxStack:   3,
				MaxLocals:  2,
				Code: []byte{
					byte(op.ICONST_0),
					byte(op.ISTORE_0),
					byte(op.ICONST_0),
					byte(op.ISTORE_1),
					byte(op.ILOAD_0),
					byte(op.BIPUSH), 10,
					byte(op.IF_ICMPGE), 0, 13,
					byte(op.ILOAD_1),
					byte(op.ILOAD_0),
					byte(op.IADD),
					byte(op.ISTORE_1),
					byte(op.IINC), 0, 1,
					byte(op.GOTO), 0xFF, 0xF3,
					byte(op.GETSTATIC), 0, 0,
					byte(op.ILOAD_1),
					byte(op.INVOKEVIRTUAL), 0, 0,
					byte(op.RETURN),
				},
			},
			{
				Name:       "fact",
				Descriptor: "(I)I",
				MaxStack:   3,
				MaxLocals:  1,
				Code: []byte{
					byte(op.LDC), 5,
					byte(op.INVOKESTATIC), 0, 4,
					byte(op.IRETURN),
				},
			},
			{Name: "abstract", Descriptor: "()V"}, // no code, no listing
		},
	}
}

func TestMethodListing(t *testing.T) {
	c := loopClass()
	l, err := Method(c, &c.Methods[0])
	require.NoError(t, err)

	assert.Equal(t, "main", l.Method)
	assert.Equal(t, 3, l.MaxStack)
	assert.Equal(t, 2, l.MaxLocals)

	byPC := map[int]Entry{}
	for _, e := range l.Entries {
		byPC[e.PC] = e
	}

	assert.Equal(t, "if_icmpge", byPC[7].Mnemonic)
	assert.Equal(t, 20, byPC[7].Target)
	assert.Equal(t, "goto", byPC[17].Mnemonic)
	assert.Equal(t, 4, byPC[17].Target)
	assert.Equal(t, []int{0, 1}, byPC[14].Operands)
	assert.Equal(t, -1, byPC[14].Target)
}

func TestListingResolvesPool(t *testing.T) {
	c := loopClass()
	l, err := Method(c, &c.Methods[1])
	require.NoError(t, err)

	assert.Equal(t, "ldc", l.Entries[0].Mnemonic)
	assert.Equal(t, "1000000", l.Entries[0].Comment)
	assert.Equal(t, "invokestatic", l.Entries[1].Mnemonic)
	assert.Equal(t, "fact(I)I", l.Entries[1].Comment)
}

func TestClassSkipsCodelessMethods(t *testing.T) {
	listings, err := Class(loopClass())
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "main", listings[0].Method)
	assert.Equal(t, "fact", listings[1].Method)
}

func TestTextSnapshot(t *testing.T) {
	listings, err := Class(loopClass())
	require.NoError(t, err)
	var b bytes.Buffer
	for _, l := range listings {
		b.WriteString(l.Text())
	}
	snaps.MatchSnapshot(t, b.String())
}

func TestJSONRoundTrip(t *testing.T) {
	listings, err := Class(loopClass())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, listings))
	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, listings, back)
}

func TestUnknownOpcodeFails(t *testing.T) {
	c := &classfile.Class{Methods: []classfile.Method{
		{Name: "bad", Descriptor: "()V", Code: []byte{0xCB}},
	}}
	_, err := Method(c, &c.Methods[0])
	assert.ErrorContains(t, err, "unknown opcode")
}

func TestTruncatedInstructionFails(t *testing.T) {
	c := &classfile.Class{Methods: []classfile.Method{
		{Name: "bad", Descriptor: "()V", Code: []byte{byte(op.SIPUSH), 1}},
	}}
	_, err := Method(c, &c.Methods[0])
	assert.ErrorContains(t, err, "truncated")
}
