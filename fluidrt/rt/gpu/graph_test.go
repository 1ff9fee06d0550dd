package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(nodes []Node, order []int) []string {
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = nodes[idx].Name
	}
	return out
}

func TestSortRespectsDependencies(t *testing.T) {
	// Declared out of order on purpose.
	nodes := []Node{
		{Name: "final", Produces: "screen", Consumes: []string{"composite", "foam"}},
		{Name: "composite", Produces: "composite", Consumes: []string{"blur", "background"}},
		{Name: "blur", Produces: "blur", Consumes: []string{"depth"}},
		{Name: "foam", Produces: "foam", Consumes: []string{"depth"}},
		{Name: "depth", Produces: "depth"},
		{Name: "cloth", Produces: "background", Consumes: []string{"background"}},
		{Name: "background", Produces: "background"},
	}

	order, err := Sort(nodes)
	require.NoError(t, err)
	got := names(nodes, order)

	pos := make(map[string]int)
	for i, n := range got {
		pos[n] = i
	}
	assert.Less(t, pos["depth"], pos["blur"])
	assert.Less(t, pos["depth"], pos["foam"])
	assert.Less(t, pos["blur"], pos["composite"])
	assert.Less(t, pos["background"], pos["cloth"])
	assert.Less(t, pos["cloth"], pos["composite"])
	assert.Equal(t, "final", got[len(got)-1])
}

func TestSortIsStableForIndependentNodes(t *testing.T) {
	nodes := []Node{{Name: "a", Produces: "a"}, {Name: "b", Produces: "b"}, {Name: "c", Produces: "c"}}
	order, err := Sort(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(nodes, order))
}

func TestSortErrors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  error
	}{
		{
			name: "cycle",
			nodes: []Node{
				{Name: "a", Produces: "a", Consumes: []string{"b"}},
				{Name: "b", Produces: "b", Consumes: []string{"a"}},
			},
			want: ErrCyclicGraph,
		},
		{
			name:  "missing producer",
			nodes: []Node{{Name: "a", Produces: "a", Consumes: []string{"ghost"}}},
			want:  ErrMissingProducer,
		},
		{
			name:  "unordered writers",
			nodes: []Node{{Name: "a", Produces: "t"}, {Name: "b", Produces: "t"}},
			want:  ErrAmbiguousWriter,
		},
		{
			name:  "duplicate",
			nodes: []Node{{Name: "a", Produces: "x"}, {Name: "a", Produces: "y"}},
			want:  ErrDuplicatePass,
		},
	}
	for _, tc := range tests {
		_, err := Sort(tc.nodes)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}
