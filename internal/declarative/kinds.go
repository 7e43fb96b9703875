package declarative

// ResourceKind identifies a type of managed resource.
type ResourceKind int

// Resource kinds, ordered by dependency layer for apply/delete sequencing.
const (
	KindDataset     ResourceKind = iota // layer 0
	KindView                            // layer 1
	KindAccessGrant                     // layer 2
)

// String returns a human-readable kebab-case name for the resource kind.
func (k ResourceKind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindView:
		return "view"
	case KindAccessGrant:
		return "access-grant"
	default:
		return "unknown"
	}
}

// Layer returns the dependency layer for ordering.
// Layer 0 has no dependencies; higher layers depend on lower ones.
func (k ResourceKind) Layer() int {
	switch k {
	case KindDataset:
		return 0
	case KindView:
		return 1
	case KindAccessGrant:
		return 2
	default:
		return 99
	}
}

// MaxLayer is the highest dependency layer.
const MaxLayer = 2

// Operation represents a planned change type.
type Operation int

const (
	// OpCreate indicates a resource should be created.
	OpCreate Operation = iota
	// OpUpdate indicates a resource should be updated.
	OpUpdate
	// OpDelete indicates a resource should be deleted.
	OpDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}
