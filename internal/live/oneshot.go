package live

import (
	"context"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// Collect resolves a parent query and one child query per parent a single
// time, producing the same snapshot shape a running FanOut would publish.
// A failing child marks only its own branch.
func Collect(ctx context.Context, store docstore.Store, parentQuery docstore.Query, childQuery ChildQueryFunc) (FanOutSnapshot, error) {
	parents, err := store.QueryOnce(ctx, parentQuery)
	if err != nil {
		return FanOutSnapshot{}, err
	}
	snapshot := FanOutSnapshot{Branches: make([]Branch, 0, len(parents))}
	for _, parent := range parents {
		branch := Branch{Parent: parent, Children: []docstore.Document{}}
		children, err := store.QueryOnce(ctx, childQuery(parent))
		if err != nil {
			if ctx.Err() != nil {
				return FanOutSnapshot{}, ctx.Err()
			}
			branch.State = ChildFailed
			branch.Err = err
		} else {
			branch.State = ChildReady
			branch.Children = children
		}
		snapshot.Branches = append(snapshot.Branches, branch)
	}
	return snapshot, nil
}
