package task

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeError(t *testing.T) {
	plain := errors.New("boom")
	se := SerializeError(plain)
	assert.Equal(t, "*errors.errorString", se.Type)
	assert.Equal(t, "boom", se.Message)
	assert.Empty(t, se.Cause)

	wrapped := fmt.Errorf("fetch doc: %w", fmt.Errorf("dial: %w", plain))
	se = SerializeError(wrapped)
	assert.Equal(t, "*fmt.wrapError", se.Type)
	assert.Equal(t, "fetch doc: dial: boom", se.Message)
	assert.Equal(t, "boom", se.Cause)
}
