package config

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// Objects maps object id (numeric or symbolic) to instance id to resource
// values.
//
//	objects:
//	  device:
//	    0:
//	      manuf: acme
//	  "3303":
//	    0:
//	      5700: 21.5
type Objects map[string]map[int]map[string]any

func (o Objects) validate() error {
	for oid, instances := range o {
		for iid := range instances {
			if iid < 0 || iid > model.MaxID {
				return fmt.Errorf("%w: object %s instance %d", ErrInvalidConfig, oid, iid)
			}
		}
	}
	return nil
}

// Apply installs the values into tree.
func (o Objects) Apply(tree *model.Tree) error {
	for _, oid := range o.objectIDs() {
		for _, iid := range o.instanceIDs(oid) {
			if err := tree.InitResource(oid, iid, o[oid][iid]); err != nil {
				return fmt.Errorf("object %s/%d: %w", oid, iid, err)
			}
		}
	}
	return nil
}

// Sync writes the values into tree. Existing resources are written, which
// reports them to observers. Missing resources are installed. It returns
// the number of resources written or installed.
func (o Objects) Sync(ctx context.Context, tree *model.Tree) (int, error) {
	var errs []error
	count := 0
	for _, oid := range o.objectIDs() {
		for _, iid := range o.instanceIDs(oid) {
			values := o[oid][iid]
			missing := make(map[string]any)
			for _, rid := range sortedKeys(values) {
				p := model.ResourcePath(oid, iid, rid)
				if !tree.Exists(p) {
					missing[rid] = values[rid]
					continue
				}
				current, err := tree.Dump(ctx, p)
				if err == nil && model.Equal(current, values[rid]) {
					continue
				}
				if err := tree.Write(ctx, p, values[rid]); err != nil {
					errs = append(errs, fmt.Errorf("write %s: %w", p, err))
					continue
				}
				count++
			}
			if len(missing) == 0 {
				continue
			}
			if err := tree.InitResource(oid, iid, missing); err != nil {
				errs = append(errs, fmt.Errorf("object %s/%d: %w", oid, iid, err))
				continue
			}
			count += len(missing)
		}
	}
	return count, errors.Join(errs...)
}

func (o Objects) objectIDs() []string {
	ids := make([]string, 0, len(o))
	for oid := range o {
		ids = append(ids, oid)
	}
	sort.Strings(ids)
	return ids
}

func (o Objects) instanceIDs(oid string) []int {
	ids := make([]int, 0, len(o[oid]))
	for iid := range o[oid] {
		ids = append(ids, iid)
	}
	sort.Ints(ids)
	return ids
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
