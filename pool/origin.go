package pool

import (
	"fmt"

	handlecache "github.com/karupanerura/handle-cache"
)

// Origin tells how a handle is obtained: built by the factory on its own,
// or derived from the handle cached under a parent key.
// The zero value is Standalone.
type Origin[K handlecache.KeyConstraint] struct {
	parent  K
	derived bool
}

// Standalone returns the origin of handles built by the factory.
func Standalone[K handlecache.KeyConstraint]() Origin[K] {
	return Origin[K]{}
}

// DerivedFrom returns the origin of handles derived from the handle cached under parent.
func DerivedFrom[K handlecache.KeyConstraint](parent K) Origin[K] {
	return Origin[K]{parent: parent, derived: true}
}

// Parent returns the parent key and true for derived origins.
func (o Origin[K]) Parent() (parent K, ok bool) {
	return o.parent, o.derived
}

// IsDerived reports whether the origin is DerivedFrom.
func (o Origin[K]) IsDerived() bool {
	return o.derived
}

func (o Origin[K]) String() string {
	if !o.derived {
		return "standalone"
	}
	return fmt.Sprintf("derived from %v", o.parent)
}
