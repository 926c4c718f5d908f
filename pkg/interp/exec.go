package interp

import (
	"fmt"

	"minijvm/pkg/classfile"
	"minijvm/pkg/op"
)

// call runs one method invocation to completion in the frame f. It
// returns the method's result and whether a result was produced; a
// method that falls off the end of its code block produces no value.
//
// Static calls recurse on the host stack: the caller's frame stays
// intact and its PC is advanced only after the callee returns.
func (m *Machine) call(method *classfile.Method, f *frame) (int32, bool, error) {
	code := method.Code
	pc := 0

	for pc < len(code) {
		c := op.Code(code[pc])
		switch c {

		case op.NOP:
			pc++

		// ---- Constants -------------------------------------------------

		case op.ICONST_M1, op.ICONST_0, op.ICONST_1, op.ICONST_2,
			op.ICONST_3, op.ICONST_4, op.ICONST_5:
			f.push(int32(c) - int32(op.ICONST_0))
			pc++

		case op.BIPUSH:
			f.push(s8(code, pc+1))
			pc += 2

		case op.SIPUSH:
			f.push(s16(code, pc+1))
			pc += 3

		case op.LDC:
			v, err := m.class.Integer(uint16(u8(code, pc+1)))
			if err != nil {
				return 0, false, fmt.Errorf("%w: %v", ErrBadConstant, err)
			}
			f.push(v)
			pc += 2

		// ---- Locals ----------------------------------------------------

		case op.ILOAD, op.ALOAD:
			f.push(f.locals[u8(code, pc+1)])
			pc += 2

		case op.ILOAD_0, op.ILOAD_1, op.ILOAD_2, op.ILOAD_3:
			f.push(f.locals[c-op.ILOAD_0])
			pc++

		case op.ALOAD_0, op.ALOAD_1, op.ALOAD_2, op.ALOAD_3:
			f.push(f.locals[c-op.ALOAD_0])
			pc++

		case op.ISTORE, op.ASTORE:
			f.locals[u8(code, pc+1)] = f.pop()
			pc += 2

		case op.ISTORE_0, op.ISTORE_1, op.ISTORE_2, op.ISTORE_3:
			f.locals[c-op.ISTORE_0] = f.pop()
			pc++

		case op.ASTORE_0, op.ASTORE_1, op.ASTORE_2, op.ASTORE_3:
			f.locals[c-op.ASTORE_0] = f.pop()
			pc++

		case op.IINC:
			f.locals[u8(code, pc+1)] += s8(code, pc+2)
			pc += 3

		// ---- Stack -----------------------------------------------------

		case op.DUP:
			f.push(f.peek())
			pc++

		// ---- Arithmetic ------------------------------------------------
		// Wrapping 32-bit two's complement throughout; MinInt32/-1 and
		// MinInt32%-1 follow from Go's defined overflow behavior.

		case op.IADD:
			left, right := f.pop2()
			f.push(left + right)
			pc++

		case op.ISUB:
			left, right := f.pop2()
			f.push(left - right)
			pc++

		case op.IMUL:
			left, right := f.pop2()
			f.push(left * right)
			pc++

		case op.IDIV:
			left, right := f.pop2()
			if right == 0 {
				return 0, false, fmt.Errorf("%w at pc %d", ErrDivisionByZero, pc)
			}
			f.push(left / right)
			pc++

		case op.IREM:
			left, right := f.pop2()
			if right == 0 {
				return 0, false, fmt.Errorf("%w at pc %d", ErrDivisionByZero, pc)
			}
			f.push(left % right)
			pc++

		case op.INEG:
			f.push(-f.pop())
			pc++

		case op.IAND:
			left, right := f.pop2()
			f.push(left & right)
			pc++

		case op.IOR:
			left, right := f.pop2()
			f.push(left | right)
			pc++

		case op.IXOR:
			left, right := f.pop2()
			f.push(left ^ right)
			pc++

		// ---- Shifts ----------------------------------------------------
		// The amount must be non-negative; the value operand may be
		// negative. iushr reinterprets the value as unsigned first.

		case op.ISHL:
			v, n := f.pop2()
			if n < 0 {
				return 0, false, fmt.Errorf("%w: %d at pc %d", ErrNegativeShift, n, pc)
			}
			f.push(v << uint32(n))
			pc++

		case op.ISHR:
			v, n := f.pop2()
			if n < 0 {
				return 0, false, fmt.Errorf("%w: %d at pc %d", ErrNegativeShift, n, pc)
			}
			f.push(v >> uint32(n))
			pc++

		case op.IUSHR:
			v, n := f.pop2()
			if n < 0 {
				return 0, false, fmt.Errorf("%w: %d at pc %d", ErrNegativeShift, n, pc)
			}
			f.push(int32(uint32(v) >> uint32(n)))
			pc++

		// ---- Branches --------------------------------------------------
		// Offsets are relative to the branch opcode's own address.

		case op.GOTO:
			pc += int(s16(code, pc+1))

		case op.IFEQ:
			pc = branch(code, pc, f.pop() == 0)
		case op.IFNE:
			pc = branch(code, pc, f.pop() != 0)
		case op.IFLT:
			pc = branch(code, pc, f.pop() < 0)
		case op.IFGE:
			pc = branch(code, pc, f.pop() >= 0)
		case op.IFGT:
			pc = branch(code, pc, f.pop() > 0)
		case op.IFLE:
			pc = branch(code, pc, f.pop() <= 0)

		case op.IF_ICMPEQ:
			left, right := f.pop2()
			pc = branch(code, pc, left == right)
		case op.IF_ICMPNE:
			left, right := f.pop2()
			pc = branch(code, pc, left != right)
		case op.IF_ICMPLT:
			left, right := f.pop2()
			pc = branch(code, pc, left < right)
		case op.IF_ICMPGE:
			left, right := f.pop2()
			pc = branch(code, pc, left >= right)
		case op.IF_ICMPGT:
			left, right := f.pop2()
			pc = branch(code, pc, left > right)
		case op.IF_ICMPLE:
			left, right := f.pop2()
			pc = branch(code, pc, left <= right)

		// ---- Returns ---------------------------------------------------

		case op.RETURN:
			return 0, false, nil

		case op.IRETURN, op.ARETURN:
			return f.pop(), true, nil

		// ---- Invocation ------------------------------------------------

		case op.INVOKESTATIC:
			callee, err := m.class.MethodByRef(u16(code, pc+1))
			if err != nil {
				return 0, false, err
			}
			cf := newFrame(callee.MaxStack, callee.MaxLocals)
			p := callee.ParamCount()
			// deepest of the p caller slots becomes callee local 0
			copy(cf.locals, f.stack[f.top-p:f.top])
			f.top -= p
			ret, hasValue, err := m.call(callee, cf)
			if err != nil {
				return 0, false, err
			}
			if hasValue {
				f.push(ret)
			}
			pc += 3

		// getstatic/invokevirtual emulate the ambient print facility:
		// getstatic is skipped, invokevirtual prints the top of stack as
		// a decimal line. No object model behind either.

		case op.GETSTATIC:
			pc += 3

		case op.INVOKEVIRTUAL:
			fmt.Fprintf(m.out, "%d\n", f.pop())
			pc += 3

		// ---- Arrays ----------------------------------------------------
		// Arrays store their length in slot 0; element i lives at i+1.

		case op.NEWARRAY:
			n := f.pop()
			if n < 0 {
				return 0, false, fmt.Errorf("%w: %d at pc %d", ErrNegativeArraySize, n, pc)
			}
			a := make([]int32, n+1)
			a[0] = n
			f.push(m.heap.Add(a))
			pc += 2 // skips the element-type tag byte

		case op.ARRAYLENGTH:
			f.push(m.heap.Get(f.pop())[0])
			pc++

		case op.IALOAD:
			index, err := m.arrayIndex(f, pc)
			if err != nil {
				return 0, false, err
			}
			a := m.heap.Get(f.pop())
			f.push(a[index+1])
			pc++

		case op.IASTORE:
			v := f.pop()
			index, err := m.arrayIndex(f, pc)
			if err != nil {
				return 0, false, err
			}
			a := m.heap.Get(f.pop())
			a[index+1] = v
			pc++

		default:
			return 0, false, fmt.Errorf("%w: 0x%02x at pc %d in %s%s",
				ErrUnknownOpcode, uint8(c), pc, method.Name, method.Descriptor)
		}
	}

	// ran past the end of the code block: no value
	return 0, false, nil
}

// arrayIndex pops an element index, validates it against the length
// word of the array whose handle sits beneath it, and returns it. The
// handle is left on the stack.
func (m *Machine) arrayIndex(f *frame, pc int) (int32, error) {
	index := f.pop()
	a := m.heap.Get(f.peek())
	if index < 0 || index >= a[0] {
		return 0, fmt.Errorf("%w: index %d, length %d at pc %d", ErrIndexOutOfRange, index, a[0], pc)
	}
	return index, nil
}

// branch computes the next PC for a conditional branch at pc: the
// 16-bit offset when taken, the following instruction otherwise.
func branch(code []byte, pc int, taken bool) int {
	if taken {
		return pc + int(s16(code, pc+1))
	}
	return pc + 3
}

// s8 reads a signed 8-bit immediate.
func s8(code []byte, at int) int32 {
	return int32(int8(code[at]))
}

// u8 reads an unsigned 8-bit immediate.
func u8(code []byte, at int) int {
	return int(code[at])
}

// s16 reads a big-endian signed 16-bit immediate.
func s16(code []byte, at int) int32 {
	return int32(int16(uint16(code[at])<<8 | uint16(code[at+1])))
}

// u16 reads a big-endian unsigned 16-bit immediate.
func u16(code []byte, at int) uint16 {
	return uint16(code[at])<<8 | uint16(code[at+1])
}
