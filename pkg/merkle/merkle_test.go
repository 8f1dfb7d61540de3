package merkle

import (
	"strings"
	"testing"
)

func sampleItems() map[string]interface{} {
	return map[string]interface{}{
		"api_calls.json": []map[string]interface{}{
			{"endpoint": "/v1/decision", "status": 200},
		},
		"model_inference.json": []map[string]interface{}{
			{"modelId": "credit-risk", "modelVersion": "2.1.0"},
		},
		"consent.json": []map[string]interface{}{
			{"userId": "u-1", "basis": "contract"},
		},
	}
}

func TestBuildDeterministic(t *testing.T) {
	t1, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t2, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if t1.Root == "" {
		t.Fatal("expected non-empty root")
	}
	if t1.Root != t2.Root {
		t.Fatalf("roots differ: %s vs %s", t1.Root, t2.Root)
	}
}

func TestBuildLeavesSorted(t *testing.T) {
	tree, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 1; i < len(tree.Leaves); i++ {
		if strings.Compare(tree.Leaves[i-1].Path, tree.Leaves[i].Path) >= 0 {
			t.Fatalf("leaves not sorted at %d: %s >= %s", i, tree.Leaves[i-1].Path, tree.Leaves[i].Path)
		}
	}
}

func TestValueChangeChangesRoot(t *testing.T) {
	base, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	mutated := sampleItems()
	mutated["consent.json"] = []map[string]interface{}{
		{"userId": "u-1", "basis": "consent"},
	}
	other, err := Build(mutated)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if base.Root == other.Root {
		t.Fatal("root unchanged after value edit")
	}
}

func TestEmptyTree(t *testing.T) {
	tree, err := Build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Root != "" {
		t.Fatalf("expected empty root, got %s", tree.Root)
	}
}

func TestSingleLeaf(t *testing.T) {
	tree, err := Build(map[string]interface{}{
		"only.json": map[string]interface{}{"a": 1},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Root != tree.Leaves[0].LeafHash {
		t.Fatal("single-leaf root should equal leaf hash")
	}
}

func TestInclusionProofRoundTrip(t *testing.T) {
	tree, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, leaf := range tree.Leaves {
		proof, err := tree.Prove(leaf.Path)
		if err != nil {
			t.Fatalf("prove %s: %v", leaf.Path, err)
		}
		if !VerifyInclusion(proof) {
			t.Fatalf("proof for %s did not verify", leaf.Path)
		}
	}
}

func TestInclusionProofTamper(t *testing.T) {
	tree, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	proof, err := tree.Prove("consent.json")
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	proof.LeafHash = strings.Repeat("0", 64)
	if VerifyInclusion(proof) {
		t.Fatal("tampered proof verified")
	}
}

func TestProveUnknownPath(t *testing.T) {
	tree, err := Build(sampleItems())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := tree.Prove("missing.json"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}
