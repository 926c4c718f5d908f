package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamCount(t *testing.T) {
	tests := []struct {
		descriptor string
		want       int
	}{
		{"()V", 0},
		{"(I)I", 1},
		{"(II)I", 2},
		{"(III)V", 3},
		{"([Ljava/lang/String;)V", 1},
		{"([I)V", 1},
		{"([[I)V", 1},
		{"(I[IJLjava/lang/Object;)V", 4},
		{"(Ljava/lang/Object;Ljava/lang/Object;)Z", 2},
		{"", 0},
		{"I", 0}, // no parameter list at all
	}
	for _, tc := range tests {
		m := &Method{Descriptor: tc.descriptor}
		assert.Equal(t, tc.want, m.ParamCount(), "descriptor %q", tc.descriptor)
	}
}

func TestReturnsValue(t *testing.T) {
	assert.False(t, (&Method{Descriptor: "()V"}).ReturnsValue())
	assert.False(t, (&Method{Descriptor: "([Ljava/lang/String;)V"}).ReturnsValue())
	assert.True(t, (&Method{Descriptor: "()I"}).ReturnsValue())
	assert.True(t, (&Method{Descriptor: "(II)[I"}).ReturnsValue())
}
