package taskhost

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/core"
)

// TestCallbackRegistry_AllocateIsUniqueUnderConcurrency runs 1000
// concurrent request_id allocations and checks they are all pairwise
// distinct.
func TestCallbackRegistry_AllocateIsUniqueUnderConcurrency(t *testing.T) {
	r := NewCallbackRegistry(nil)
	const n = 1000

	ids := make([]RequestID, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			ids[i] = r.Allocate()
		}()
	}
	wg.Wait()

	seen := make(map[RequestID]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "request_id %d allocated more than once", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

// TestCallbackRegistry_ShuffledResolutionDeliversOwnResponse is scenario
// S8's second half: 5 pending callbacks resolved in shuffled order; each
// continuation observes only the response carrying its own id.
func TestCallbackRegistry_ShuffledResolutionDeliversOwnResponse(t *testing.T) {
	r := NewCallbackRegistry(nil)
	const n = 5

	ids := make([]RequestID, n)
	chans := make([]<-chan Response, n)
	for i := 0; i < n; i++ {
		ids[i] = r.Allocate()
		chans[i] = r.Register(ids[i])
	}

	order := rand.Perm(n)
	for _, i := range order {
		r.Resolve(ids[i], Response{Payload: fmt.Sprintf("answer-%d", i)})
	}

	for i := 0; i < n; i++ {
		select {
		case resp := <-chans[i]:
			assert.Equal(t, fmt.Sprintf("answer-%d", i), resp.Payload, "continuation %d must observe only its own response", i)
		default:
			t.Fatalf("continuation %d never received its response", i)
		}
	}
	assert.Zero(t, r.Pending())
}

func TestCallbackRegistry_ResolveUnknownIDIsDroppedWithWarning(t *testing.T) {
	var warnings []string
	r := NewCallbackRegistry(warnFunc(func(msg string, args ...any) {
		warnings = append(warnings, msg)
	}))

	r.Resolve(RequestID(999), Response{Payload: "nobody home"})
	assert.Len(t, warnings, 1)
}

func TestCallbackRegistry_AbandonRemovesWithoutResolving(t *testing.T) {
	r := NewCallbackRegistry(nil)
	id := r.Allocate()
	ch := r.Register(id)
	r.Abandon(id)

	select {
	case <-ch:
		t.Fatal("abandoned completion must never be resolved")
	default:
	}
	assert.Zero(t, r.Pending())
}

type warnFunc func(msg string, args ...any)

func (f warnFunc) Warn(msg string, args ...any) { f(msg, args...) }

func TestCallbackClient_UnsupportedReturnsZeroAndLogsE_CallbackUnsupported(t *testing.T) {
	var logged *core.BuildError
	client := &CallbackClient{
		Registry:     NewCallbackRegistry(nil),
		Capabilities: HandshakeCapabilities{SupportsCallbacks: false},
		Send:         func(RequestID, string, any) error { t.Fatal("unsupported callbacks must never reach the wire"); return nil },
		Logger: &TaskHostLogger{Warn: func(msg string, args ...any) {
			// args are "error_code", code
			require.Len(t, args, 2)
			assert.Equal(t, "E-CALLBACK-UNSUPPORTED", args[1])
		}},
	}

	result, err := client.Call("RequestCores", 2, 0)
	assert.Equal(t, 0, result)
	require.NotNil(t, err)
	assert.Equal(t, core.ErrorKindCallbackUnsupported, err.Kind)
	_ = logged
}

func TestCallbackClient_SupportedRoundTripsThroughRegistry(t *testing.T) {
	registry := NewCallbackRegistry(nil)
	client := &CallbackClient{
		Registry:     registry,
		Capabilities: HandshakeCapabilities{SupportsCallbacks: true},
		Send: func(id RequestID, method string, args any) error {
			go registry.Resolve(id, Response{Payload: true})
			return nil
		},
	}

	result, err := client.Call("AreMultipleNodesRunning", nil, false)
	require.Nil(t, err)
	assert.Equal(t, true, result)
}
