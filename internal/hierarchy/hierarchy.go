// Package hierarchy walks parent links in the list and tag forests.
//
// Walks are iterative and track visited ids, so a corrupt hierarchy that
// already contains a cycle fails closed with an integrity error instead of
// looping.
package hierarchy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/types"
)

// Node is one entry of a forest.
type Node struct {
	ID       int64
	Name     string
	ParentID *int64
}

// Lookup resolves a live node by id. found is false when the id does not
// resolve to a live row.
type Lookup func(ctx context.Context, id int64) (node Node, found bool, err error)

// Chain returns the nodes from start up to its root, start first.
// A missing start yields an empty chain. A parent link to a missing node
// ends the chain at the last live node.
func Chain(ctx context.Context, entity string, start int64, lookup Lookup) ([]Node, error) {
	var chain []Node
	visited := make(map[int64]bool)

	cur := &start
	for cur != nil {
		if visited[*cur] {
			return nil, types.Integrityf("%s hierarchy contains a cycle at %s %d", entity, entity, *cur)
		}
		visited[*cur] = true

		node, found, err := lookup(ctx, *cur)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		chain = append(chain, node)
		cur = node.ParentID
	}
	return chain, nil
}

// CheckParent verifies that making parent the parent of id keeps the forest
// acyclic. id may be 0 for an entity that does not exist yet.
func CheckParent(ctx context.Context, entity string, id, parent int64, lookup Lookup) error {
	if id != 0 && parent == id {
		return types.Integrityf("%s %d cannot be its own parent", entity, id)
	}

	chain, err := Chain(ctx, entity, parent, lookup)
	if err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	for _, n := range chain {
		if n.ID == id {
			return types.Integrityf("moving %s %d under %s %d would create a cycle", entity, id, entity, parent)
		}
	}
	return nil
}

// Path returns the names from the root down to the first node of chain.
func Path(chain []Node) []string {
	path := make([]string, len(chain))
	for i, n := range chain {
		path[len(chain)-1-i] = n.Name
	}
	return path
}

// Depth returns the number of ancestors above the first node of chain.
func Depth(chain []Node) int {
	if len(chain) == 0 {
		return 0
	}
	return len(chain) - 1
}

// ScopeLookup resolves nodes of table inside sc. table must have id, name and
// parent_id columns; liveOnly adds a deleted_at IS NULL filter.
func ScopeLookup(sc storage.Scope, table string, liveOnly bool) Lookup {
	query := fmt.Sprintf(`SELECT id, name, parent_id FROM %s WHERE id = ?`, table)
	if liveOnly {
		query += ` AND deleted_at IS NULL`
	}
	return func(ctx context.Context, id int64) (Node, bool, error) {
		var n Node
		var parent sql.NullInt64
		err := sc.QueryRow(ctx, query, id).Scan(&n.ID, &n.Name, &parent)
		if errors.Is(err, sql.ErrNoRows) {
			return Node{}, false, nil
		}
		if err != nil {
			return Node{}, false, fmt.Errorf("failed to read %s %d: %w", table, id, err)
		}
		n.ParentID = storage.NullToID(parent)
		return n, true, nil
	}
}

// MapLookup resolves nodes from an in-memory index, for derived fields of a
// result that was already read in full.
func MapLookup(nodes map[int64]Node) Lookup {
	return func(_ context.Context, id int64) (Node, bool, error) {
		n, ok := nodes[id]
		return n, ok, nil
	}
}
