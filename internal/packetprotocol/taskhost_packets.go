package packetprotocol

import (
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/taskhost"
)

// TaskHostConfigurationPacket is the wire form of taskhost.TaskHostConfiguration.
type TaskHostConfigurationPacket struct {
	*taskhost.TaskHostConfiguration
}

func (p *TaskHostConfigurationPacket) Translate(tr *Translator) {
	c := p.TaskHostConfiguration
	taskName, assemblyLocation, culture := "", "", ""
	line, column := int32(0), int32(0)
	continueOnError := false
	var names []string
	values := map[string]string{}

	if tr.Writing {
		taskName = c.TaskName
		assemblyLocation = c.AssemblyLocation
		culture = c.Culture
		line = int32(c.Line)
		column = int32(c.Column)
		continueOnError = c.ContinueOnError
		if c.GlobalProperties != nil {
			names = c.GlobalProperties.Names()
			for _, n := range names {
				v, _ := c.GlobalProperties.Get(n)
				values[n] = v
			}
		}
	}

	tr.String(&taskName)
	tr.String(&assemblyLocation)
	tr.Culture(&culture)
	tr.Int(&line)
	tr.Int(&column)
	tr.Bool(&continueOnError)
	tr.StringDictionary(&names, &values)

	paramCount := int32(0)
	if tr.Writing {
		paramCount = int32(len(c.Parameters))
	}
	tr.Int(&paramCount)
	params := make([]taskhost.TaskParameter, paramCount)
	for i := int32(0); i < paramCount; i++ {
		name, value := "", ""
		if tr.Writing {
			name = c.Parameters[i].Name
			if s, ok := c.Parameters[i].Value.(string); ok {
				value = s
			}
		}
		tr.String(&name)
		tr.String(&value)
		params[i] = taskhost.TaskParameter{Name: name, Value: value}
	}

	if !tr.Writing {
		gp := core.NewGlobalProperties(nil)
		for _, n := range names {
			gp.Set(n, values[n])
		}
		p.TaskHostConfiguration = &taskhost.TaskHostConfiguration{
			TaskName:         taskName,
			AssemblyLocation: assemblyLocation,
			GlobalProperties: gp,
			Line:             int(line),
			Column:           int(column),
			ContinueOnError:  continueOnError,
			Culture:          culture,
			Parameters:       params,
		}
	}
}

// TaskHostTaskCompletePacket is the wire form of taskhost.TaskCompletion.
type TaskHostTaskCompletePacket struct {
	*taskhost.TaskCompletion
}

func (p *TaskHostTaskCompletePacket) Translate(tr *Translator) {
	c := p.TaskCompletion
	completeType, resourceName := int32(0), ""
	if tr.Writing {
		completeType = int32(c.Type)
		resourceName = c.ExceptionMessageResourceName
	}
	tr.Int(&completeType)
	tr.String(&resourceName)

	hasException := tr.Writing && c.Exception != nil
	tr.Bool(&hasException)
	var exc *core.BuildError
	if hasException {
		if tr.Writing {
			EncodeException(tr, c.Exception)
		} else {
			exc = DecodeException(tr)
		}
	}

	var keys []string
	outputs := map[string]string{}
	if tr.Writing {
		for k, v := range c.OutputParameters {
			if s, ok := v.(string); ok {
				keys = append(keys, k)
				outputs[k] = s
			}
		}
	}
	tr.StringDictionary(&keys, &outputs)

	if !tr.Writing {
		outParams := make(map[string]any, len(outputs))
		for k, v := range outputs {
			outParams[k] = v
		}
		p.TaskCompletion = &taskhost.TaskCompletion{
			Type:                         taskhost.TaskCompleteType(completeType),
			OutputParameters:             outParams,
			Exception:                    exc,
			ExceptionMessageResourceName: resourceName,
		}
	}
}

// TaskHostCallbackQueryRequestPacket asks the coordinator an engine-state
// question.
type TaskHostCallbackQueryRequestPacket struct {
	RequestID int64
	Method    string
}

func (p *TaskHostCallbackQueryRequestPacket) Translate(tr *Translator) {
	tr.Long(&p.RequestID)
	tr.String(&p.Method)
}

// TaskHostCallbackQueryResponsePacket answers a query callback with a
// scalar result.
type TaskHostCallbackQueryResponsePacket struct {
	RequestID  int64
	BoolValue  bool
	IntValue   int32
}

func (p *TaskHostCallbackQueryResponsePacket) Translate(tr *Translator) {
	tr.Long(&p.RequestID)
	tr.Bool(&p.BoolValue)
	tr.Int(&p.IntValue)
}

// TaskHostCallbackResourceRequestPacket is a core-grant request.
type TaskHostCallbackResourceRequestPacket struct {
	RequestID    int64
	RequestCores int32
	Release      bool
}

func (p *TaskHostCallbackResourceRequestPacket) Translate(tr *Translator) {
	tr.Long(&p.RequestID)
	tr.Int(&p.RequestCores)
	tr.Bool(&p.Release)
}

// TaskHostCallbackResourceResponsePacket grants 1..n cores.
type TaskHostCallbackResourceResponsePacket struct {
	RequestID   int64
	GrantedCores int32
}

func (p *TaskHostCallbackResourceResponsePacket) Translate(tr *Translator) {
	tr.Long(&p.RequestID)
	tr.Int(&p.GrantedCores)
}
