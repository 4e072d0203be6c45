package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/qswitch-sim/sim/pauli"
)

func TestLinkIDAllocator_StrictlyIncreasingPerRemote(t *testing.T) {
	a := NewLinkIDAllocator()
	assert.Equal(t, LinkIDOrigin, a.NextID("A"))
	assert.Equal(t, LinkIDOrigin+1, a.NextID("A"))
	assert.Equal(t, LinkIDOrigin, a.NextID("B"))
	assert.Equal(t, LinkIDOrigin+2, a.NextID("A"))
	assert.Equal(t, LinkIDOrigin+1, a.Peek("B"))
	assert.Equal(t, LinkIDOrigin+1, a.NextID("B"))
}

func TestLinkIDAllocator_Reset_MatchesFreshInstance(t *testing.T) {
	a := NewLinkIDAllocator()
	a.NextID("A")
	a.NextID("A")
	a.NextID("B")

	a.Reset()
	fresh := NewLinkIDAllocator()
	for _, remote := range []string{"A", "B", "C"} {
		assert.Equal(t, fresh.Peek(remote), a.Peek(remote))
		assert.Equal(t, fresh.NextID(remote), a.NextID(remote))
	}
}

func TestNewLinkGroup(t *testing.T) {
	links := []Link{{RemoteNodeName: "A", LinkID: 1}, {RemoteNodeName: "B", LinkID: 4}}
	g, err := NewLinkGroup(links, []pauli.Operator{pauli.Z, pauli.I})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.False(t, g.Empty())
	assert.Equal(t, []string{"A", "B"}, g.Peers())

	// the group owns its slices
	links[0].LinkID = 99
	assert.Equal(t, 1, g.Links[0].LinkID)

	_, err = NewLinkGroup(links, []pauli.Operator{pauli.I})
	assert.Error(t, err)
	assert.True(t, LinkGroup{}.Empty())
}

func TestBufferCapacity_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		in      string
		want    BufferCapacity
		wantErr bool
	}{
		{"0", 0, false},
		{"5", 5, false},
		{"unbounded", Unbounded, false},
		{"inf", Unbounded, false},
		{".inf", Unbounded, false},
		{"-1", 0, true},
		{"many", 0, true},
	}
	for _, tc := range tests {
		var got struct {
			B BufferCapacity `yaml:"b"`
		}
		err := yaml.Unmarshal([]byte("b: "+tc.in), &got)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.B, tc.in)
	}
}

func TestBufferCapacity_String(t *testing.T) {
	assert.Equal(t, "unbounded", Unbounded.String())
	assert.Equal(t, "3", BufferCapacity(3).String())
	assert.True(t, BufferCapacity(-7).IsUnbounded())
}
