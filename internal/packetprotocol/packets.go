package packetprotocol

import (
	"os"
	"strings"

	"github.com/buildmesh/enginecore/internal/core"
)

// CurrentEnvelopeVersion is the payload version this build produces.
// Readers must also accept PreviousEnvelopeVersion and upgrade missing
// fields to their defaults.
const CurrentEnvelopeVersion int32 = 2

// PreviousEnvelopeVersion is the oldest version a reader must still
// accept.
const PreviousEnvelopeVersion int32 = 1

// legacyCompatEnvVar requests legacy-compatible output for rolling
// upgrades.
const legacyCompatEnvVar = "BUILDMESH_LEGACY_PACKET_COMPAT"

// OutputVersion is the envelope version this process writes: the current
// version, unless the legacy-compat feature flag is set, in which case
// the previous version is produced instead.
func OutputVersion() int32 {
	if truthy(os.Getenv(legacyCompatEnvVar)) {
		return PreviousEnvelopeVersion
	}
	return CurrentEnvelopeVersion
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Encode writes t's frame: an envelope version, then body.Translate in
// writing mode.
func Encode(t PacketType, body Translatable) ([]byte, error) {
	tr := NewWriter()
	version := OutputVersion()
	tr.Int(&version)
	body.Translate(tr)
	if tr.Err() != nil {
		return nil, tr.Err()
	}
	return tr.Bytes(), nil
}

// Decode reads an envelope version then decodes body in reading mode.
// Versions older than PreviousEnvelopeVersion are rejected; versions
// newer than CurrentEnvelopeVersion are accepted on the assumption that a
// newer producer only appends fields (forward-compatible truncation is
// the reader's problem, not the decoder's).
func Decode(payload []byte, body Translatable) error {
	tr := NewReader(payload)
	var version int32
	tr.Int(&version)
	if version < PreviousEnvelopeVersion {
		return core.NewInternalError("packet envelope version %d is older than the minimum supported version %d", version, PreviousEnvelopeVersion)
	}
	body.Translate(tr)
	return tr.Err()
}

// BuildRequestPacket is the wire form of a core.BuildRequest.
type BuildRequestPacket struct {
	*core.BuildRequest
}

func (p *BuildRequestPacket) Translate(tr *Translator) {
	r := p.BuildRequest
	submissionID := r.SubmissionID
	nodeRequestID := r.NodeRequestID
	globalRequestID := int64(r.GlobalRequestID)
	parentGlobalRequestID := int64(r.ParentGlobalRequestID)
	configurationID := int32(r.ConfigurationID)
	flags := int32(r.Flags)
	var targets []string
	if tr.Writing {
		targets = r.Targets.Names()
	}

	tr.String(&submissionID)
	tr.Long(&nodeRequestID)
	tr.Long(&globalRequestID)
	tr.Long(&parentGlobalRequestID)
	tr.Int(&configurationID)
	tr.Int(&flags)
	tr.StringArray(&targets)

	if !tr.Writing {
		p.BuildRequest = &core.BuildRequest{
			SubmissionID:          submissionID,
			NodeRequestID:         nodeRequestID,
			GlobalRequestID:       core.GlobalRequestId(globalRequestID),
			ParentGlobalRequestID: core.GlobalRequestId(parentGlobalRequestID),
			ConfigurationID:       core.ConfigurationId(configurationID),
			Flags:                 core.RequestFlags(flags),
			Targets:               core.NewTargetNameSet(targets),
		}
	}
}

// BuildRequestConfigurationPacket is the wire form of a
// core.BuildRequestConfiguration.
type BuildRequestConfigurationPacket struct {
	*core.BuildRequestConfiguration
}

func (p *BuildRequestConfigurationPacket) Translate(tr *Translator) {
	c := p.BuildRequestConfiguration
	id := int32(0)
	path := ""
	toolsVersion := ""
	var names []string
	values := map[string]string{}

	if tr.Writing {
		id = int32(c.Id)
		path = c.ProjectFullPath
		toolsVersion = c.ToolsVersion
		if c.GlobalProperties != nil {
			names = c.GlobalProperties.Names()
			for _, n := range names {
				v, _ := c.GlobalProperties.Get(n)
				values[n] = v
			}
		}
	}

	tr.Int(&id)
	tr.String(&path)
	tr.String(&toolsVersion)
	tr.StringDictionary(&names, &values)

	if !tr.Writing {
		gp := core.NewGlobalProperties(nil)
		for _, n := range names {
			gp.Set(n, values[n])
		}
		p.BuildRequestConfiguration = &core.BuildRequestConfiguration{
			Id:               core.ConfigurationId(id),
			ProjectFullPath:  path,
			ToolsVersion:     toolsVersion,
			GlobalProperties: gp,
		}
	}
}

// BuildResultPacket is the wire form of a core.BuildResult. Items and
// metadata on individual TargetResults are carried verbatim as
// name/value-map pairs.
type BuildResultPacket struct {
	*core.BuildResult
}

type wireItem struct {
	Spec     string
	MetaKeys []string
	MetaVals map[string]string
}

type wireTargetResult struct {
	Name       string
	ResultCode int32
	ActionCode int32
	Exception  *core.BuildError
	Items      []wireItem
}

func (it *wireItem) translate(tr *Translator) {
	tr.String(&it.Spec)
	tr.StringDictionary(&it.MetaKeys, &it.MetaVals)
}

func (p *BuildResultPacket) Translate(tr *Translator) {
	r := p.BuildResult
	configurationID := int32(0)
	globalRequestID := int64(0)
	parentGlobalRequestID := int64(0)
	circularDependency := false
	var initialTargets, defaultTargets []string
	var names []string

	if tr.Writing {
		configurationID = int32(r.ConfigurationID)
		globalRequestID = int64(r.GlobalRequestID)
		parentGlobalRequestID = int64(r.ParentGlobalRequestID)
		circularDependency = r.CircularDependency
		initialTargets = r.InitialTargets
		defaultTargets = r.DefaultTargets
		names = r.TargetNames()
	}

	tr.Int(&configurationID)
	tr.Long(&globalRequestID)
	tr.Long(&parentGlobalRequestID)
	tr.Bool(&circularDependency)
	tr.StringArray(&initialTargets)
	tr.StringArray(&defaultTargets)

	hasResultException := tr.Writing && r.Exception != nil
	tr.Bool(&hasResultException)
	var resultException *core.BuildError
	if hasResultException {
		if tr.Writing {
			EncodeException(tr, r.Exception)
		} else {
			resultException = DecodeException(tr)
		}
	}

	count := int32(len(names))
	tr.Int(&count)
	if !tr.Writing {
		names = make([]string, count)
	}

	var built *core.BuildResult
	if !tr.Writing {
		built = core.NewBuildResult(core.ConfigurationId(configurationID))
		built.GlobalRequestID = core.GlobalRequestId(globalRequestID)
		built.ParentGlobalRequestID = core.GlobalRequestId(parentGlobalRequestID)
		built.CircularDependency = circularDependency
		built.InitialTargets = initialTargets
		built.DefaultTargets = defaultTargets
		built.Exception = resultException
	}

	for i := int32(0); i < count; i++ {
		var wt wireTargetResult
		if tr.Writing {
			name := names[i]
			tgt, _ := r.TargetResult(name)
			wt = wireTargetResult{
				Name:       name,
				ResultCode: int32(tgt.WorkUnitResult.ResultCode),
				ActionCode: int32(tgt.WorkUnitResult.ActionCode),
				Exception:  tgt.WorkUnitResult.Exception,
			}
			for _, it := range tgt.Items {
				var keys []string
				vals := make(map[string]string, len(it.Metadata))
				for k, v := range it.Metadata {
					keys = append(keys, k)
					vals[k] = v
				}
				wt.Items = append(wt.Items, wireItem{Spec: it.Spec, MetaKeys: keys, MetaVals: vals})
			}
		}

		tr.String(&wt.Name)
		tr.Int(&wt.ResultCode)
		tr.Int(&wt.ActionCode)
		hasTargetException := tr.Writing && wt.Exception != nil
		tr.Bool(&hasTargetException)
		if hasTargetException {
			if tr.Writing {
				EncodeException(tr, wt.Exception)
			} else {
				wt.Exception = DecodeException(tr)
			}
		}
		itemCount := int32(len(wt.Items))
		tr.Int(&itemCount)
		if !tr.Writing {
			wt.Items = make([]wireItem, itemCount)
		}
		for ii := int32(0); ii < itemCount; ii++ {
			wt.Items[ii].translate(tr)
		}

		if !tr.Writing {
			var items []*core.TaskItem
			for _, wi := range wt.Items {
				items = append(items, core.NewTaskItem(wi.Spec, wi.MetaVals))
			}
			built.AddTargetResult(wt.Name, &core.TargetResult{
				WorkUnitResult: core.WorkUnitResult{
					ResultCode: core.ResultCode(wt.ResultCode),
					ActionCode: core.ActionCode(wt.ActionCode),
					Exception:  wt.Exception,
				},
				Items: items,
			})
		}
	}

	if !tr.Writing {
		p.BuildResult = built
	}
}

// NodeConfigurationPacket advertises a worker node's capacity and
// capabilities on handshake, including the callback-support flag.
type NodeConfigurationPacket struct {
	NodeID            string
	MaxCPUCount       int32
	SupportsCallbacks bool
}

func (p *NodeConfigurationPacket) Translate(tr *Translator) {
	tr.String(&p.NodeID)
	tr.Int(&p.MaxCPUCount)
	tr.Bool(&p.SupportsCallbacks)
}

// NodeShutdownPacket tells a node to terminate.
type NodeShutdownPacket struct {
	Reason string
}

func (p *NodeShutdownPacket) Translate(tr *Translator) { tr.String(&p.Reason) }

// BuildSubmissionStartedPacket announces a new top-level submission.
type BuildSubmissionStartedPacket struct {
	SubmissionID    string
	EntryProjectFullPath string
}

func (p *BuildSubmissionStartedPacket) Translate(tr *Translator) {
	tr.String(&p.SubmissionID)
	tr.String(&p.EntryProjectFullPath)
}
