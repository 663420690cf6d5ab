package handlecache

// ValueCloner is an interface for cloning values.
// A cache uses it to hand out copies of stored values, so callers cannot
// mutate what the cache holds.
type ValueCloner[V ValueConstraint] interface {
	CloneValue(V) V
}

// ValueClonerFunc is a function type that implements the ValueCloner interface.
type ValueClonerFunc[V ValueConstraint] func(v V) V

// CloneValue calls the function.
func (f ValueClonerFunc[V]) CloneValue(v V) V {
	return f(v)
}

// NopValueCloner is a value cloner that does not clone values.
// It is the default for caches of shared handles, where every caller must observe the same instance.
type NopValueCloner[V ValueConstraint] struct{}

// CloneValue returns the input value.
func (NopValueCloner[V]) CloneValue(v V) V {
	return v
}

// MethodValueCloner returns a cloner that calls the Clone or DeepCopy method of the value.
// It returns false if V has neither method.
func MethodValueCloner[V ValueConstraint]() (ValueCloner[V], bool) {
	type cloner interface {
		Clone() V
	}
	type deepCopier interface {
		DeepCopy() V
	}

	var zero V
	switch any(zero).(type) {
	case cloner:
		return ValueClonerFunc[V](func(v V) V {
			return any(v).(cloner).Clone()
		}), true
	case deepCopier:
		return ValueClonerFunc[V](func(v V) V {
			return any(v).(deepCopier).DeepCopy()
		}), true
	default:
		return nil, false
	}
}
