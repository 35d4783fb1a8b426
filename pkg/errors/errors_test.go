package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := New(CodeInvalidArgument, "bad input").
		WithContext("b", 2).
		WithContext("a", "x")
	assert.Equal(t, "[E201] bad input (a=x, b=2)", err.Error())

	wrapped := Wrap(stderrors.New("disk full"), CodeWriteFailed, "writing table")
	assert.Equal(t, "[E301] writing table: disk full", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeUnknown, "nothing"))
}

func TestCodesThroughWrapping(t *testing.T) {
	base := UndefinedMeasure("speed")
	err := fmt.Errorf("running: %w", base)

	assert.True(t, IsCode(err, CodeUndefinedMeasure))
	assert.Equal(t, CodeUndefinedMeasure, GetCode(err))
	assert.True(t, stderrors.Is(err, New(CodeUndefinedMeasure, "")))
	assert.False(t, IsCode(err, CodeCache))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))

	cause := stderrors.New("eof")
	rec := MalformedRecord("log.csv", 7, cause)
	assert.ErrorIs(t, rec, cause)
	assert.Equal(t, 7, rec.Context["line"])
}

func TestMissing(t *testing.T) {
	err := fmt.Errorf("uipath: %w", SchemaMismatch([]string{"timestamp", "activity"}))
	assert.Equal(t, []string{"timestamp", "activity"}, Missing(err))
	assert.Contains(t, err.Error(), "could not find attribute(s) timestamp, activity")
	assert.Nil(t, Missing(FileNotFound("x")))
}

func TestStackTrace(t *testing.T) {
	err := Newf(CodeInvalidFormat, "line %d", 3)
	require.NotEmpty(t, err.StackTrace)
	assert.Contains(t, err.StackTrace[0].Function, "TestStackTrace")
	assert.Contains(t, err.FormatStack(), "errors_test.go")
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.Combined())
	m.Add(nil)
	assert.False(t, m.HasErrors())

	first := New(CodeStorage, "a")
	m.Add(first)
	assert.Same(t, first, m.Combined())

	m.Add(New(CodeCache, "b"))
	require.Error(t, m.Combined())
	assert.Contains(t, m.Error(), "2 errors occurred")
}
