package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent is a minimal agent for registry and scheduler tests.
type stubAgent struct {
	id        string
	kind      string
	docs      []Document
	collect   error
	unhealthy error
}

func (a *stubAgent) ID() string   { return a.id }
func (a *stubAgent) Type() string { return a.kind }

func (a *stubAgent) Collect(context.Context) ([]Document, error) {
	if a.collect != nil {
		return nil, a.collect
	}
	return a.docs, nil
}

func (a *stubAgent) HealthCheck(context.Context) error { return a.unhealthy }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "faq", kind: "database"}, "0 * * * *")

	agent := r.Get("faq")
	require.NotNil(t, agent)
	assert.Equal(t, "database", agent.Type())
	assert.Equal(t, "0 * * * *", r.Schedule("faq"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDefaultSchedule(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "faq", kind: "database"}, "")
	assert.Equal(t, DefaultSchedule, r.Schedule("faq"))
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "a", kind: "script"}, "")
	r.Register(&stubAgent{id: "b", kind: "script"}, "")
	r.Register(&stubAgent{id: "a", kind: "database"}, "30 * * * *")

	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, "database", r.Get("a").Type())
	assert.Equal(t, "30 * * * *", r.Schedule("a"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "a", kind: "script"}, "")
	r.Register(&stubAgent{id: "b", kind: "script"}, "")

	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	assert.Nil(t, r.Get("a"))
	assert.Equal(t, []string{"b"}, r.IDs())
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "faq", kind: "database"}, "0 2 * * *")
	r.Register(&stubAgent{id: "news", kind: "script"}, "")

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, AgentInfo{ID: "faq", Type: "database", Schedule: "0 2 * * *"}, infos[0])
	assert.Equal(t, AgentInfo{ID: "news", Type: "script", Schedule: DefaultSchedule}, infos[1])
}
