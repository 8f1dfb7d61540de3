package merkle

import "fmt"

// ProofStep places one sibling hash relative to the accumulated hash.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R"
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof shows a single evidence item belongs to a tree root.
type InclusionProof struct {
	LeafPath  string      `json:"leaf_path"`
	LeafHash  string      `json:"leaf_hash"`
	Root      string      `json:"root"`
	ProofPath []ProofStep `json:"proof_path"`
}

// Prove produces an inclusion proof for the leaf at path.
func (t *Tree) Prove(path string) (*InclusionProof, error) {
	idx := -1
	for i, l := range t.Leaves {
		if l.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("merkle: no leaf for path %q", path)
	}

	proof := &InclusionProof{
		LeafPath: path,
		LeafHash: t.Leaves[idx].LeafHash,
		Root:     t.Root,
	}

	for _, level := range t.levels[:len(t.levels)-1] {
		// Odd levels duplicate the last hash, mirroring Build.
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		var step ProofStep
		if idx%2 == 0 {
			step = ProofStep{Side: "R", SiblingHash: level[idx+1]}
		} else {
			step = ProofStep{Side: "L", SiblingHash: level[idx-1]}
		}
		proof.ProofPath = append(proof.ProofPath, step)
		idx /= 2
	}

	return proof, nil
}

// VerifyInclusion recomputes the root from the proof and compares it to the
// claimed root. It needs no access to the tree itself.
func VerifyInclusion(p *InclusionProof) bool {
	if p == nil {
		return false
	}
	current := p.LeafHash
	for _, step := range p.ProofPath {
		switch step.Side {
		case "L":
			current = nodeHash(step.SiblingHash, current)
		case "R":
			current = nodeHash(current, step.SiblingHash)
		default:
			return false
		}
	}
	return current == p.Root
}
