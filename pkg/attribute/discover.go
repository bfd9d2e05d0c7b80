package attribute

import (
	"fmt"

	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// Lister exposes the tree structure needed for discovery.
type Lister interface {
	Exists(p model.Path) bool
	Children(p model.Path) []model.Path
	Resolver() model.Resolver
}

// Discover returns the link of p with its attributes followed by one link
// per instance and resource below p.
func (s *Store) Discover(tree Lister, p model.Path) ([]codec.Link, error) {
	if !tree.Exists(p) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, p)
	}
	r := tree.Resolver()

	links := []codec.Link{{Target: p.Numeric(r), Params: s.Params(p)}}
	for _, child := range tree.Children(p) {
		links = append(links, codec.Link{Target: child.Numeric(r), Params: s.Params(child)})
	}
	return links, nil
}
