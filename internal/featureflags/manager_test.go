package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,broken=abc%")

	assert.True(t, m.Enabled("always", 1))
	assert.True(t, m.Enabled("always", 0))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("broken", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0))
}

func TestDefaults(t *testing.T) {
	assert.True(t, NewManager("").Enabled(ReactionBroadcast, 0))
	assert.False(t, NewManager("reaction_broadcast=off").Enabled(ReactionBroadcast, 7))
	assert.False(t, NewManager(" Reaction_Broadcast = OFF ").Enabled(ReactionBroadcast, 7))
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off,=on,w= ")

	raw := m.Raw()
	assert.Equal(t, map[string]string{
		"x":               "on",
		"y":               "20%",
		"z":               "off",
		ReactionBroadcast: "on",
	}, raw)

	raw["x"] = "off"
	assert.True(t, m.Enabled("x", 1), "Raw returns a copy")

	snap := m.Snapshot(123)
	assert.Len(t, snap, 4)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(ReactionBroadcast, 1))
}
