package packetprotocol

import "time"

// LogEventKind discriminates the LogMessage union.
type LogEventKind int32

const (
	LogEventBuildStarted LogEventKind = iota
	LogEventBuildFinished
	LogEventProjectStarted
	LogEventProjectFinished
	LogEventTargetStarted
	LogEventTargetFinished
	LogEventTargetSkipped
	LogEventTaskStarted
	LogEventTaskFinished
	LogEventTaskCommandLine
	LogEventTaskParameter
	LogEventBuildMessage
	LogEventBuildWarning
	LogEventBuildError
	LogEventCriticalBuildMessage
	LogEventExtendedError
	LogEventExtendedWarning
	LogEventExtendedMessage
	LogEventExtendedCustom
	LogEventExtendedCriticalMessage
	LogEventResponseFileUsed
	LogEventUninitializedPropertyRead
	LogEventEnvironmentVariableRead
	LogEventPropertyReassignment
	LogEventPropertyInitialValueSet
	LogEventMetaprojectGenerated
	LogEventGeneratedFileUsed
	LogEventProjectEvaluationStarted
	LogEventProjectEvaluationFinished
	LogEventAssemblyLoad
	LogEventBuildSubmissionStarted
	LogEventBuildCanceled
	LogEventWorkerNodeTelemetry
)

// LogMessage is the build-event union every node emits. Every variant
// shares this fixed field list; unused fields for a given Kind are
// left at their zero value, matching a single wide event-row logging
// shape rather than a Go union type (no tagged-union idiom fits a
// format required to round-trip byte-for-byte across every variant).
type LogMessage struct {
	Kind      LogEventKind
	EventID   int64
	Timestamp time.Time
	NodeID    string

	Message  string
	Subcategory string
	Code     string
	File     string
	LineNumber   int32
	ColumnNumber int32
	EndLineNumber   int32
	EndColumnNumber int32

	ProjectFile string
	TargetName  string
	TaskName    string

	Importance int32 // Low/Normal/High, for BuildMessage/TaskParameter variants

	CommandLine string

	PropertyName  string
	PropertyValue string
	PreviousValue string
	PropertySource string

	EnvironmentVariableName string

	ExtendedType string // Extended{Error,Warning,...}'s discriminator

	SkipReason string // TargetSkipped

	AssemblyPath string

	SubmissionID string
	Cancelled    bool

	TelemetryEventName string
	TelemetryProperties map[string]string
}

// Translate implements Translatable for LogMessage.
func (m *LogMessage) Translate(tr *Translator) {
	kind := int32(m.Kind)
	tr.Int(&kind)
	m.Kind = LogEventKind(kind)

	tr.Long(&m.EventID)
	tr.DateTime(&m.Timestamp)
	tr.String(&m.NodeID)

	tr.String(&m.Message)
	tr.String(&m.Subcategory)
	tr.String(&m.Code)
	tr.String(&m.File)
	tr.Int(&m.LineNumber)
	tr.Int(&m.ColumnNumber)
	tr.Int(&m.EndLineNumber)
	tr.Int(&m.EndColumnNumber)

	tr.String(&m.ProjectFile)
	tr.String(&m.TargetName)
	tr.String(&m.TaskName)

	tr.Int(&m.Importance)
	tr.String(&m.CommandLine)

	tr.String(&m.PropertyName)
	tr.String(&m.PropertyValue)
	tr.String(&m.PreviousValue)
	tr.String(&m.PropertySource)

	tr.String(&m.EnvironmentVariableName)
	tr.String(&m.ExtendedType)
	tr.String(&m.SkipReason)
	tr.String(&m.AssemblyPath)

	tr.String(&m.SubmissionID)
	tr.Bool(&m.Cancelled)

	tr.String(&m.TelemetryEventName)
	var keys []string
	tr.StringDictionary(&keys, &m.TelemetryProperties)
}
