package core

import "time"

// TaskParameterKind discriminates a TaskParameterValue's payload. Replaces
// a dynamic, string-keyed dictionary of arbitrary task parameters with a
// closed sum type the packet translator can discriminate on a single tag
// byte.
type TaskParameterKind byte

const (
	TaskParamBool TaskParameterKind = iota
	TaskParamByte
	TaskParamShort
	TaskParamInt
	TaskParamLong
	TaskParamDouble
	TaskParamDecimal
	TaskParamChar
	TaskParamString
	TaskParamDateTime
	TaskParamTaskItem
	TaskParamArray
)

// TaskParameterValue is a single input or output parameter passed to an
// out-of-process task.
type TaskParameterValue struct {
	Kind TaskParameterKind

	BoolVal     bool
	ByteVal     byte
	ShortVal    int16
	IntVal      int32
	LongVal     int64
	DoubleVal   float64
	DecimalVal  string // fixed-point decimal carried as its canonical string form
	CharVal     rune
	StringVal   string
	DateTimeVal time.Time
	ItemVal     *TaskItem
	ArrayVal    []TaskParameterValue
}

// NamedTaskParameter pairs a parameter name with its value, preserving
// the ordered-mapping requirement of TaskHostConfiguration.
type NamedTaskParameter struct {
	Name  string
	Value TaskParameterValue
}
