// Package merkle builds Merkle trees over ingested log records so a bundle
// can attest to the exact evidence set it was scored against. Leaves are
// keyed by filename and hashed over the canonical form of the record's
// entries; any edit to any entry changes the root.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/orbitlabs/orbit/pkg/canonical"
)

// Domain-separation prefixes. Leaf and interior hashes must never collide.
const (
	leafPrefix = "orbit:logs:leaf:v1"
	nodePrefix = "orbit:logs:node:v1"
)

// Leaf is one hashed evidence item.
type Leaf struct {
	Path     string `json:"path"`
	LeafHash string `json:"leaf_hash"`
}

// Tree is a Merkle tree over a set of evidence items.
type Tree struct {
	Leaves []Leaf     `json:"leaves"`
	Root   string     `json:"root"`
	levels [][]string // node hashes per level, leaves first
}

// Build constructs a tree from path→value pairs. Paths are sorted before
// hashing so the root is independent of map iteration order.
func Build(items map[string]interface{}) (*Tree, error) {
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	leaves := make([]Leaf, len(paths))
	for i, path := range paths {
		canBytes, err := canonical.Encode(items[path], nil)
		if err != nil {
			return nil, fmt.Errorf("merkle: leaf %q: %w", path, err)
		}
		leaves[i] = Leaf{
			Path:     path,
			LeafHash: sha256Hex(leafBytes(path, canBytes)),
		}
	}

	if len(leaves) == 0 {
		return &Tree{Root: ""}, nil
	}

	tree := &Tree{Leaves: leaves}
	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = l.LeafHash
	}

	for len(level) > 1 {
		tree.levels = append(tree.levels, level)
		level = nextLevel(level)
	}
	tree.levels = append(tree.levels, level)
	tree.Root = level[0]

	return tree, nil
}

func leafBytes(path string, canonicalValue []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(path)
	buf.WriteByte(0)
	buf.Write(canonicalValue)
	return buf.Bytes()
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}

	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
