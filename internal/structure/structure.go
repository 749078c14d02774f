// Package structure enumerates chains and residues from PDB structure
// files. It is a thin collaborator for the scan pipeline: it reads ATOM
// records only, keeps first-observed order, and performs no structural
// interpretation beyond chain/residue identity.
package structure

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/structbio/ddgscan/internal/errdefs"
)

// Residue identifies one residue observed in a structure.
type Residue struct {
	Chain  string
	SeqNum int
	// Type is the one-letter residue type.
	Type string
}

// Label returns the conventional position label, wild type first:
// e.g. "GA104" for glycine at position 104 of chain A.
func (r Residue) Label() string {
	return fmt.Sprintf("%s%s%d", r.Type, r.Chain, r.SeqNum)
}

// Structure is the chain/residue summary of one input file.
type Structure struct {
	// Path is the source file path.
	Path string
	// Name is the file basename without extension, used for run naming.
	Name string
	// Residues in first-observed order.
	Residues []Residue
	// Chains in first-observed order.
	Chains []string
}

// three-letter to one-letter residue codes for the twenty standard types.
var threeToOne = map[string]string{
	"ALA": "A", "ARG": "R", "ASN": "N", "ASP": "D", "CYS": "C",
	"GLN": "Q", "GLU": "E", "GLY": "G", "HIS": "H", "ILE": "I",
	"LEU": "L", "LYS": "K", "MET": "M", "PHE": "F", "PRO": "P",
	"SER": "S", "THR": "T", "TRP": "W", "TYR": "Y", "VAL": "V",
}

// Load reads a PDB file and returns its chain/residue summary.
// Unknown residue names (waters, ligands, modified residues) are skipped.
func Load(path string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.Configuration(fmt.Sprintf("cannot open structure %s", path), err)
	}
	defer f.Close()

	s := &Structure{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	seenRes := make(map[string]bool)
	seenChain := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "ATOM") || len(line) < 27 {
			continue
		}
		// Fixed PDB columns: resName 18-20, chainID 22, resSeq 23-26.
		resName := strings.TrimSpace(line[17:20])
		chain := strings.TrimSpace(line[21:22])
		seqStr := strings.TrimSpace(line[22:26])

		one, ok := threeToOne[resName]
		if !ok || chain == "" {
			continue
		}
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}

		key := chain + "/" + seqStr
		if seenRes[key] {
			continue
		}
		seenRes[key] = true
		s.Residues = append(s.Residues, Residue{Chain: chain, SeqNum: seq, Type: one})

		if !seenChain[chain] {
			seenChain[chain] = true
			s.Chains = append(s.Chains, chain)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.Configuration(fmt.Sprintf("cannot read structure %s", path), err)
	}
	if len(s.Residues) == 0 {
		return nil, errdefs.Validation(fmt.Sprintf("structure %s contains no recognizable residues", path), nil)
	}
	return s, nil
}

// LoadAll loads every path and verifies the structures agree on their
// residue sets, so that the same mutation model applies to all variants.
func LoadAll(paths []string) ([]*Structure, error) {
	if len(paths) == 0 {
		return nil, errdefs.Validation("no input structures given", nil)
	}

	structures := make([]*Structure, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		structures = append(structures, s)
	}

	first := structures[0]
	for _, other := range structures[1:] {
		if err := sameResidues(first, other); err != nil {
			return nil, err
		}
	}
	return structures, nil
}

func sameResidues(a, b *Structure) error {
	if len(a.Residues) != len(b.Residues) {
		return errdefs.Validation(fmt.Sprintf(
			"structures %s and %s disagree: %d vs %d residues",
			a.Name, b.Name, len(a.Residues), len(b.Residues)), nil)
	}
	for i, ra := range a.Residues {
		if ra != b.Residues[i] {
			return errdefs.Validation(fmt.Sprintf(
				"structures %s and %s disagree at %s vs %s",
				a.Name, b.Name, ra.Label(), b.Residues[i].Label()), nil)
		}
	}
	return nil
}
