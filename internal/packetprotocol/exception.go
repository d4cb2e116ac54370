package packetprotocol

import (
	"sync"

	"github.com/buildmesh/enginecore/internal/core"
)

// genericRuntimeErrorTypeName is what an unrecognized exception type name
// decodes to.
const genericRuntimeErrorTypeName = "GenericRuntimeError"

var (
	typeRegistryMu sync.RWMutex
	typeRegistry   = map[string]bool{
		genericRuntimeErrorTypeName: true,
	}
)

// RegisterExceptionTypeName records typeName as a known exception type
// for round-tripping. Unregistered names still serialize fine; they only affect
// whether a subsequent decode trusts the name or falls back to the
// generic runtime error.
func RegisterExceptionTypeName(typeName string) {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()
	typeRegistry[typeName] = true
}

func isRegisteredTypeName(typeName string) bool {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()
	return typeRegistry[typeName]
}

// EncodeException writes e and its inner chain. Reference identity is
// not preserved: a shared inner exception is flattened and re-encoded
// at each occurrence.
func EncodeException(tr *Translator, e *core.BuildError) {
	present := e != nil
	tr.Bool(&present)
	if !present {
		return
	}
	typeName := e.TypeName
	if typeName == "" {
		typeName = e.Kind.String()
	}
	tr.String(&typeName)
	tr.String(&e.Message)
	tr.String(&e.StackTrace)
	EncodeException(tr, e.Inner)
}

// DecodeException reads the chain EncodeException wrote. An unregistered
// type name decodes to a generic runtime error carrying the original
// message.
func DecodeException(tr *Translator) *core.BuildError {
	var present bool
	tr.Bool(&present)
	if !present {
		return nil
	}
	var typeName, message, stack string
	tr.String(&typeName)
	tr.String(&message)
	tr.String(&stack)
	inner := DecodeException(tr)

	kind := core.ErrorKindInternalError
	effectiveType := typeName
	if !isRegisteredTypeName(typeName) {
		effectiveType = genericRuntimeErrorTypeName
	} else if k, ok := kindForTypeName(typeName); ok {
		kind = k
	}

	return &core.BuildError{
		Kind:       kind,
		Message:    message,
		TypeName:   effectiveType,
		StackTrace: stack,
		Inner:      inner,
	}
}

// kindForTypeName recovers an ErrorKind from one of this module's own
// kind-name strings, so a BuildError that round-trips through the wire
// without ever leaving this process keeps its original classification.
func kindForTypeName(typeName string) (core.ErrorKind, bool) {
	switch typeName {
	case core.ErrorKindInvalidProjectFile.String():
		return core.ErrorKindInvalidProjectFile, true
	case core.ErrorKindInternalError.String():
		return core.ErrorKindInternalError, true
	case core.ErrorKindTaskExecutionFailure.String():
		return core.ErrorKindTaskExecutionFailure, true
	case core.ErrorKindTaskHostCrash.String():
		return core.ErrorKindTaskHostCrash, true
	case core.ErrorKindSerializationFailure.String():
		return core.ErrorKindSerializationFailure, true
	case core.ErrorKindCancellation.String():
		return core.ErrorKindCancellation, true
	case core.ErrorKindCallbackUnsupported.String():
		return core.ErrorKindCallbackUnsupported, true
	default:
		return core.ErrorKindInternalError, false
	}
}

func init() {
	RegisterExceptionTypeName(core.ErrorKindInvalidProjectFile.String())
	RegisterExceptionTypeName(core.ErrorKindInternalError.String())
	RegisterExceptionTypeName(core.ErrorKindTaskExecutionFailure.String())
	RegisterExceptionTypeName(core.ErrorKindTaskHostCrash.String())
	RegisterExceptionTypeName(core.ErrorKindSerializationFailure.String())
	RegisterExceptionTypeName(core.ErrorKindCancellation.String())
	RegisterExceptionTypeName(core.ErrorKindCallbackUnsupported.String())
}
