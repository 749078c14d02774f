// Package mutation builds the set of (position, target type) pairs a scan
// generates. Positions come from the input structure; targets come from a
// user-supplied list, the fixed twenty-type default, or self-mutation mode.
package mutation

import (
	"fmt"
	"strings"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/structure"
)

// ResidueTypes is the fixed default target list, in canonical order.
var ResidueTypes = []string{
	"A", "C", "D", "E", "F", "G", "H", "I", "K", "L",
	"M", "N", "P", "Q", "R", "S", "T", "V", "W", "Y",
}

var validType = func() map[string]bool {
	m := make(map[string]bool, len(ResidueTypes))
	for _, t := range ResidueTypes {
		m[t] = true
	}
	return m
}()

// GroupSeparator joins the member labels of a multimer group into one
// logical position name.
const GroupSeparator = "-"

// Position is one mutable site. In multimer mode a Position spans several
// chains whose residues mutate in lockstep.
type Position struct {
	// Members holds one residue per chain in the group; a single-chain
	// position has exactly one member.
	Members []structure.Residue
}

// Name is the logical position label: member labels joined with a stable
// separator, e.g. "GA104" or "GA104-GB104".
func (p Position) Name() string {
	labels := make([]string, len(p.Members))
	for i, m := range p.Members {
		labels[i] = m.Label()
	}
	return strings.Join(labels, GroupSeparator)
}

// WildType is the shared wild-type residue type of the group.
func (p Position) WildType() string { return p.Members[0].Type }

// MutationLabel is the aggregation key for mutating this position to
// target, e.g. "GA104W".
func (p Position) MutationLabel(target string) string {
	return p.Name() + target
}

// Descriptors returns the per-member engine mutation descriptors for a
// target type, e.g. ["GA104W", "GB104W"] for a two-chain group.
func (p Position) Descriptors(target string) []string {
	out := make([]string, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.Label() + target
	}
	return out
}

// Model maps every enumerated position to its ordered target list.
type Model struct {
	Positions []Position
	// Targets is the shared ordered target list in list mode; in
	// self-mutation mode each position's single target is its own wild
	// type and Targets is nil.
	Targets []string
	// SelfOnly marks self-mutation (noise baseline) mode.
	SelfOnly bool
}

// TargetsFor returns the ordered target list for one position.
func (m *Model) TargetsFor(p Position) []string {
	if m.SelfOnly {
		return []string{p.WildType()}
	}
	return m.Targets
}

// RunCount is the total number of mutate runs the model generates.
func (m *Model) RunCount() int {
	n := 0
	for _, p := range m.Positions {
		n += len(m.TargetsFor(p))
	}
	return n
}

// ParseTargets validates and dedupes a user-supplied target list while
// preserving order. The wild type is never removed here: self-to-self
// mutation is allowed whenever the list contains it.
func ParseTargets(tokens []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range tokens {
		t := strings.ToUpper(strings.TrimSpace(tok))
		if t == "" {
			continue
		}
		if !validType[t] {
			return nil, errdefs.Validation(fmt.Sprintf("unrecognized residue type %q in mutation list", tok), nil)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errdefs.Validation("mutation list is empty", nil)
	}
	return out, nil
}

// Options controls model construction.
type Options struct {
	// Targets is the explicit target list; nil selects the twenty-type
	// default. Ignored when SelfOnly is set.
	Targets []string
	// SelfOnly builds a noise-baseline model: each position maps to its
	// own wild type only.
	SelfOnly bool
	// Multimer groups residues that share sequence number and wild type
	// across chains into lockstep positions.
	Multimer bool
}

// Build enumerates positions from s and attaches targets per opts.
func Build(s *structure.Structure, opts Options) (*Model, error) {
	m := &Model{SelfOnly: opts.SelfOnly}

	if !opts.SelfOnly {
		if opts.Targets != nil {
			m.Targets = opts.Targets
		} else {
			m.Targets = append([]string(nil), ResidueTypes...)
		}
	}

	if opts.Multimer {
		m.Positions = groupPositions(s.Residues)
	} else {
		for _, r := range s.Residues {
			m.Positions = append(m.Positions, Position{Members: []structure.Residue{r}})
		}
	}
	return m, nil
}

// groupPositions clusters residues across chains by (sequence number,
// wild type), preserving first-observed order. Residues with no partner
// form single-member groups.
func groupPositions(residues []structure.Residue) []Position {
	type key struct {
		seq int
		typ string
	}
	index := make(map[key]int)
	var out []Position
	for _, r := range residues {
		k := key{r.SeqNum, r.Type}
		if i, ok := index[k]; ok {
			out[i].Members = append(out[i].Members, r)
			continue
		}
		index[k] = len(out)
		out = append(out, Position{Members: []structure.Residue{r}})
	}
	return out
}
