// Package merkle commits an event stream to a single root hash and produces
// inclusion proofs for individual events. The leaves are the per-event hashes
// in sequence order, so a verifier holding only the root can check that a
// given event is part of the committed history.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	leafPrefix = "ledgercore:stream:leaf:v1"
	nodePrefix = "ledgercore:stream:node:v1"
)

// Leaf is one committed event: its sequence number and stored event hash.
type Leaf struct {
	Sequence uint64
	Hash     string
}

// StreamTree is a Merkle tree over an event stream.
type StreamTree struct {
	Leaves []Leaf
	Root   string
	levels [][]string
}

// Build constructs the tree. Leaves must already be in sequence order; an
// empty stream has an empty root.
func Build(leaves []Leaf) *StreamTree {
	tree := &StreamTree{Leaves: leaves}
	if len(leaves) == 0 {
		return tree
	}

	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = leafHash(l)
	}
	tree.levels = append(tree.levels, level)

	for len(level) > 1 {
		level = nextLevel(level)
		tree.levels = append(tree.levels, level)
	}
	tree.Root = level[0]
	return tree
}

// ProofStep is one sibling on the path from a leaf to the root. Side says
// which side the sibling hash joins from.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R"
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof shows that one event belongs to a stream with a given root.
type InclusionProof struct {
	Sequence  uint64      `json:"sequence"`
	LeafHash  string      `json:"leaf_hash"`
	Root      string      `json:"root"`
	ProofPath []ProofStep `json:"proof_path"`
}

// Prove generates an inclusion proof for the leaf with the given sequence.
func (t *StreamTree) Prove(sequence uint64) (*InclusionProof, error) {
	index := -1
	for i, l := range t.Leaves {
		if l.Sequence == sequence {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("sequence %d is not in the tree", sequence)
	}

	proof := &InclusionProof{
		Sequence: sequence,
		LeafHash: t.levels[0][index],
		Root:     t.Root,
	}

	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			// Odd level: the last node is paired with itself.
			sibling = index
		}
		side := "R"
		if sibling < index {
			side = "L"
		}
		proof.ProofPath = append(proof.ProofPath, ProofStep{
			Side:        side,
			SiblingHash: level[sibling],
		})
		index /= 2
	}
	return proof, nil
}

// Verify checks an inclusion proof against a trusted root.
func Verify(proof *InclusionProof, expectedRoot string) bool {
	if expectedRoot != "" && !strings.EqualFold(proof.Root, expectedRoot) {
		return false
	}

	current := proof.LeafHash
	for _, step := range proof.ProofPath {
		if step.Side == "L" {
			current = nodeHash(step.SiblingHash, current)
		} else {
			current = nodeHash(current, step.SiblingHash)
		}
	}
	return strings.EqualFold(current, proof.Root)
}

func leafHash(l Leaf) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.BigEndian, l.Sequence)
	buf.WriteByte(0)
	buf.WriteString(l.Hash)
	return sha256Hex(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}
	level := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		level[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return level
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
