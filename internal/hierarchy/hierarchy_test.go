package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tasklattice/tasklattice/internal/types"
)

func id(v int64) *int64 { return &v }

// forest: 1 <- 2 <- 3, 4 (root)
func forest() map[int64]Node {
	return map[int64]Node{
		1: {ID: 1, Name: "Root"},
		2: {ID: 2, Name: "Work", ParentID: id(1)},
		3: {ID: 3, Name: "Sprint", ParentID: id(2)},
		4: {ID: 4, Name: "Home"},
	}
}

func TestChain_PathAndDepth(t *testing.T) {
	chain, err := Chain(context.Background(), "list", 3, MapLookup(forest()))
	if err != nil {
		t.Fatalf("Chain() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Root", "Work", "Sprint"}, Path(chain)); diff != "" {
		t.Errorf("Path() mismatch (-want +got):\n%s", diff)
	}
	if got := Depth(chain); got != 2 {
		t.Errorf("Depth() = %d, want 2", got)
	}
}

func TestChain_CorruptCycleFailsClosed(t *testing.T) {
	nodes := forest()
	nodes[1] = Node{ID: 1, Name: "Root", ParentID: id(3)}

	_, err := Chain(context.Background(), "list", 3, MapLookup(nodes))
	if !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("Chain() error = %v, want integrity", err)
	}
}

func TestCheckParent(t *testing.T) {
	tests := []struct {
		name    string
		id      int64
		parent  int64
		wantErr bool
	}{
		{name: "new entity under leaf", id: 0, parent: 3},
		{name: "move to other root", id: 2, parent: 4},
		{name: "self parent", id: 2, parent: 2, wantErr: true},
		{name: "under own descendant", id: 1, parent: 3, wantErr: true},
		{name: "under direct child", id: 2, parent: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckParent(context.Background(), "list", tt.id, tt.parent, MapLookup(forest()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckParent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrIntegrity) {
				t.Errorf("CheckParent() error = %v, want integrity", err)
			}
		})
	}
}
