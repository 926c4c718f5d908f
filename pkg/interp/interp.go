// Package interp executes the integer subset of JVM bytecode over a
// parsed class image. Execution is single-threaded and synchronous:
// a frame per invocation, host-stack recursion for static calls, and
// one shared append-only heap for integer arrays.
package interp

import (
	"errors"
	"fmt"
	"io"
	"os"

	"minijvm/pkg/classfile"
)

// EntryName and EntryDescriptor identify the method executed by Run.
const (
	EntryName       = "main"
	EntryDescriptor = "([Ljava/lang/String;)V"
)

var (
	// ErrEntryNotFound means the class has no main([Ljava/lang/String;)V.
	ErrEntryNotFound = errors.New("interp: entry method not found")

	// ErrEntryReturnedValue means the entry method produced a value.
	ErrEntryReturnedValue = errors.New("interp: entry method returned a value")

	// ErrDivisionByZero is returned by idiv and irem on a zero divisor.
	ErrDivisionByZero = errors.New("interp: division by zero")

	// ErrNegativeShift is returned when a shift amount is negative.
	ErrNegativeShift = errors.New("interp: negative shift amount")

	// ErrNegativeArraySize is returned by newarray on a negative length.
	ErrNegativeArraySize = errors.New("interp: negative array size")

	// ErrIndexOutOfRange is returned by iaload and iastore when the
	// index falls outside the array's stored length.
	ErrIndexOutOfRange = errors.New("interp: array index out of range")

	// ErrUnknownOpcode means the dispatcher hit a byte outside the
	// implemented subset.
	ErrUnknownOpcode = errors.New("interp: unknown opcode")

	// ErrBadConstant means ldc named a pool entry that is not an
	// integer constant.
	ErrBadConstant = errors.New("interp: bad constant")
)

// Machine executes methods of a single class image. The zero Machine is
// not usable; construct with New.
type Machine struct {
	class *classfile.Class
	heap  *Heap
	out   io.Writer
}

// New returns a Machine for the given class, printing to stdout.
func New(class *classfile.Class) *Machine {
	return &Machine{
		class: class,
		heap:  NewHeap(),
		out:   os.Stdout,
	}
}

// SetOutput redirects the print opcode's output.
func (m *Machine) SetOutput(w io.Writer) {
	m.out = w
}

// Heap exposes the machine's array heap.
func (m *Machine) Heap() *Heap {
	return m.heap
}

// Run locates the entry method and executes it to completion. The heap
// is torn down when Run returns, whatever the outcome. The entry method
// must produce no value.
func (m *Machine) Run() error {
	defer m.heap.Release()

	entry := m.class.Method(EntryName, EntryDescriptor)
	if entry == nil {
		return fmt.Errorf("%w: %s%s in class %s", ErrEntryNotFound, EntryName, EntryDescriptor, m.class.Name)
	}
	_, hasValue, err := m.Invoke(entry)
	if err != nil {
		return err
	}
	if hasValue {
		return fmt.Errorf("%w: %s%s", ErrEntryReturnedValue, EntryName, EntryDescriptor)
	}
	return nil
}

// Invoke executes one method with the given arguments in locals 0..n−1
// and returns its result and whether a result was produced.
func (m *Machine) Invoke(method *classfile.Method, args ...int32) (int32, bool, error) {
	f := newFrame(method.MaxStack, method.MaxLocals)
	copy(f.locals, args)
	return m.call(method, f)
}
