package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/structure"
)

func res(chain string, seq int, typ string) structure.Residue {
	return structure.Residue{Chain: chain, SeqNum: seq, Type: typ}
}

func TestParseTargets(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{"simple", []string{"A", "W"}, []string{"A", "W"}, false},
		{"lowercase and spaces", []string{" a", "w "}, []string{"A", "W"}, false},
		{"dedup keeps order", []string{"W", "A", "W"}, []string{"W", "A"}, false},
		{"blank tokens skipped", []string{"A", "", "G"}, []string{"A", "G"}, false},
		{"unknown token", []string{"A", "X"}, nil, true},
		{"empty list", []string{"", " "}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTargets(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errdefs.IsKind(err, errdefs.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDefaultTargets(t *testing.T) {
	s := &structure.Structure{
		Name:     "m",
		Residues: []structure.Residue{res("A", 104, "G")},
		Chains:   []string{"A"},
	}

	m, err := Build(s, Options{})
	require.NoError(t, err)
	require.Len(t, m.Positions, 1)
	assert.Equal(t, ResidueTypes, m.TargetsFor(m.Positions[0]))
	assert.Equal(t, 20, m.RunCount())
}

func TestBuildListModeKeepsSelfTarget(t *testing.T) {
	// Supplying the wild type in the list must keep a self-to-self run.
	targets, err := ParseTargets([]string{"G", "W"})
	require.NoError(t, err)

	s := &structure.Structure{
		Name:     "m",
		Residues: []structure.Residue{res("A", 104, "G")},
		Chains:   []string{"A"},
	}
	m, err := Build(s, Options{Targets: targets})
	require.NoError(t, err)
	assert.Equal(t, []string{"G", "W"}, m.TargetsFor(m.Positions[0]))
}

func TestBuildSelfOnly(t *testing.T) {
	s := &structure.Structure{
		Name: "m",
		Residues: []structure.Residue{
			res("A", 1, "G"), res("A", 2, "W"), res("A", 3, "K"),
		},
		Chains: []string{"A"},
	}

	m, err := Build(s, Options{SelfOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, m.RunCount())
	for _, p := range m.Positions {
		assert.Equal(t, []string{p.WildType()}, m.TargetsFor(p))
	}
	assert.Equal(t, "GA1G", m.Positions[0].MutationLabel(m.TargetsFor(m.Positions[0])[0]))
}

func TestBuildMultimerGroups(t *testing.T) {
	s := &structure.Structure{
		Name: "dimer",
		Residues: []structure.Residue{
			res("A", 104, "G"), res("A", 105, "W"),
			res("B", 104, "G"), res("B", 105, "W"),
		},
		Chains: []string{"A", "B"},
	}

	m, err := Build(s, Options{Multimer: true})
	require.NoError(t, err)
	require.Len(t, m.Positions, 2)

	g := m.Positions[0]
	assert.Equal(t, "GA104-GB104", g.Name())
	assert.Equal(t, []string{"GA104W", "GB104W"}, g.Descriptors("W"))
	assert.Equal(t, "GA104-GB104W", g.MutationLabel("W"))
}

func TestBuildMultimerUnpairedResidueStaysSingle(t *testing.T) {
	s := &structure.Structure{
		Name: "dimer",
		Residues: []structure.Residue{
			res("A", 104, "G"), res("B", 104, "A"), // types differ, no group
		},
		Chains: []string{"A", "B"},
	}

	m, err := Build(s, Options{Multimer: true})
	require.NoError(t, err)
	assert.Len(t, m.Positions, 2)
}

func TestRunCountScenario(t *testing.T) {
	// 3 positions x 19 targets mirrors a scan that excludes the wild type
	// by supplying 19 explicit targets.
	s := &structure.Structure{
		Name: "m",
		Residues: []structure.Residue{
			res("A", 1, "G"), res("A", 2, "G"), res("A", 3, "G"),
		},
		Chains: []string{"A"},
	}
	var nonGly []string
	for _, rt := range ResidueTypes {
		if rt != "G" {
			nonGly = append(nonGly, rt)
		}
	}
	m, err := Build(s, Options{Targets: nonGly})
	require.NoError(t, err)
	assert.Equal(t, 57, m.RunCount())
}
