package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSwarm(roles ...string) *SwarmDescriptor {
	s := &SwarmDescriptor{Identifier: "dev-swarm", SwarmType: "etl"}
	for i, role := range roles {
		s.Agents = append(s.Agents, AgentDescriptor{
			Identifier: []string{"writer", "editor", "reviewer", "tester"}[i],
			RACIRole:   role,
		})
	}
	return s
}

func TestSwarmValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := testSwarm("r", "a", "c", "i")
		assert.NoError(t, s.Validate())
	})

	t.Run("no responsible", func(t *testing.T) {
		s := testSwarm("c", "a")
		assert.Error(t, s.Validate())
	})

	t.Run("no accountable", func(t *testing.T) {
		s := testSwarm("r", "c")
		assert.Error(t, s.Validate())
	})

	t.Run("two responsible", func(t *testing.T) {
		s := testSwarm("r", "a", "r")
		assert.Error(t, s.Validate())
	})

	t.Run("two accountable", func(t *testing.T) {
		s := testSwarm("a", "a", "r")
		assert.Error(t, s.Validate())
	})

	t.Run("no agents", func(t *testing.T) {
		s := &SwarmDescriptor{Identifier: "empty"}
		assert.Error(t, s.Validate())
	})

	t.Run("case insensitive roles", func(t *testing.T) {
		s := testSwarm("R", "A")
		assert.NoError(t, s.Validate())

		responsible, err := s.SingleRoleAgent(RACIResponsible)
		require.NoError(t, err)
		assert.Equal(t, "writer", responsible.Identifier)
	})
}

func TestSwarmLookups(t *testing.T) {
	s := testSwarm("r", "a", "c")

	assert.Equal(t, []string{"writer", "editor", "reviewer"}, s.Identifiers())
	require.NotNil(t, s.Agent("editor"))
	assert.Equal(t, "a", s.Agent("editor").RACIRole)
	assert.Nil(t, s.Agent("nobody"))
}
