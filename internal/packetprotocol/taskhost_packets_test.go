package packetprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/taskhost"
)

func TestTaskHostConfigurationPacket_RoundTrip(t *testing.T) {
	gp := core.NewGlobalProperties([][2]string{{"Configuration", "Debug"}})
	cfg := &taskhost.TaskHostConfiguration{
		TaskName:         "Csc",
		AssemblyLocation: "/usr/lib/msbuild/Csc.dll",
		GlobalProperties: gp,
		Line:             10,
		Column:           3,
		ContinueOnError:  true,
		Culture:          "en-US",
		Parameters: []taskhost.TaskParameter{
			{Name: "Sources", Value: "a.cs;b.cs"},
		},
	}

	encoded, err := Encode(PacketTypeTaskHostConfiguration, &TaskHostConfigurationPacket{cfg})
	require.NoError(t, err)

	var decoded TaskHostConfigurationPacket
	require.NoError(t, Decode(encoded, &decoded))
	got := decoded.TaskHostConfiguration

	assert.Equal(t, cfg.TaskName, got.TaskName)
	assert.Equal(t, cfg.AssemblyLocation, got.AssemblyLocation)
	assert.Equal(t, cfg.Line, got.Line)
	assert.Equal(t, cfg.Column, got.Column)
	assert.Equal(t, cfg.ContinueOnError, got.ContinueOnError)
	assert.Equal(t, cfg.Culture, got.Culture)
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, "Sources", got.Parameters[0].Name)
	assert.Equal(t, "a.cs;b.cs", got.Parameters[0].Value)
	v, ok := got.GlobalProperties.Get("Configuration")
	require.True(t, ok)
	assert.Equal(t, "Debug", v)
}

func TestTaskHostTaskCompletePacket_SuccessRoundTrip(t *testing.T) {
	c := &taskhost.TaskCompletion{
		Type:             taskhost.TaskCompleteSuccess,
		OutputParameters: map[string]any{"OutputPath": "bin/Debug"},
	}

	encoded, err := Encode(PacketTypeTaskHostTaskComplete, &TaskHostTaskCompletePacket{c})
	require.NoError(t, err)

	var decoded TaskHostTaskCompletePacket
	require.NoError(t, Decode(encoded, &decoded))
	got := decoded.TaskCompletion

	assert.Equal(t, taskhost.TaskCompleteSuccess, got.Type)
	assert.Nil(t, got.Exception)
	assert.Equal(t, "bin/Debug", got.OutputParameters["OutputPath"])
}

func TestTaskHostTaskCompletePacket_CrashWithExceptionRoundTrip(t *testing.T) {
	c := &taskhost.TaskCompletion{
		Type:      taskhost.TaskCompleteCrashedDuringExecution,
		Exception: core.NewBuildError(core.ErrorKindTaskHostCrash, "access violation"),
	}
	require.NoError(t, c.Validate())

	encoded, err := Encode(PacketTypeTaskHostTaskComplete, &TaskHostTaskCompletePacket{c})
	require.NoError(t, err)

	var decoded TaskHostTaskCompletePacket
	require.NoError(t, Decode(encoded, &decoded))
	got := decoded.TaskCompletion

	assert.Equal(t, taskhost.TaskCompleteCrashedDuringExecution, got.Type)
	require.NotNil(t, got.Exception)
	assert.Equal(t, "access violation", got.Exception.Message)
}

func TestTaskHostCallbackPackets_RoundTrip(t *testing.T) {
	reqPacket := &TaskHostCallbackQueryRequestPacket{RequestID: 7, Method: "IsRunningMultipleNodes"}
	encoded, err := Encode(PacketTypeTaskHostCallbackQueryRequest, reqPacket)
	require.NoError(t, err)
	var decodedReq TaskHostCallbackQueryRequestPacket
	require.NoError(t, Decode(encoded, &decodedReq))
	assert.Equal(t, *reqPacket, decodedReq)

	respPacket := &TaskHostCallbackQueryResponsePacket{RequestID: 7, BoolValue: true}
	encoded, err = Encode(PacketTypeTaskHostCallbackQueryResponse, respPacket)
	require.NoError(t, err)
	var decodedResp TaskHostCallbackQueryResponsePacket
	require.NoError(t, Decode(encoded, &decodedResp))
	assert.Equal(t, *respPacket, decodedResp)

	resourceReq := &TaskHostCallbackResourceRequestPacket{RequestID: 8, RequestCores: 4}
	encoded, err = Encode(PacketTypeTaskHostCallbackResourceRequest, resourceReq)
	require.NoError(t, err)
	var decodedResourceReq TaskHostCallbackResourceRequestPacket
	require.NoError(t, Decode(encoded, &decodedResourceReq))
	assert.Equal(t, *resourceReq, decodedResourceReq)

	resourceResp := &TaskHostCallbackResourceResponsePacket{RequestID: 8, GrantedCores: 2}
	encoded, err = Encode(PacketTypeTaskHostCallbackResourceResponse, resourceResp)
	require.NoError(t, err)
	var decodedResourceResp TaskHostCallbackResourceResponsePacket
	require.NoError(t, Decode(encoded, &decodedResourceResp))
	assert.Equal(t, *resourceResp, decodedResourceResp)
}
