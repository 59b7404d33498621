package operation

// Set is an insertion-ordered set of operations. It is the accumulator the
// createOperations hook threads through its handlers, and its order is the
// stable graph order the engine uses to break ties between ready operations.
type Set struct {
	ops   []*Operation
	index map[*Operation]struct{}
}

// NewSet creates a set holding ops, ignoring duplicates.
func NewSet(ops ...*Operation) *Set {
	s := &Set{index: make(map[*Operation]struct{}, len(ops))}
	for _, op := range ops {
		s.Add(op)
	}
	return s
}

// Add appends op unless it is already present.
func (s *Set) Add(op *Operation) {
	if s.index == nil {
		s.index = make(map[*Operation]struct{})
	}
	if _, ok := s.index[op]; ok {
		return
	}
	s.index[op] = struct{}{}
	s.ops = append(s.ops, op)
}

// Remove deletes op and every dependency edge pointing at it from the
// remaining operations.
func (s *Set) Remove(op *Operation) {
	if _, ok := s.index[op]; !ok {
		return
	}
	delete(s.index, op)
	for i, o := range s.ops {
		if o == op {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			break
		}
	}
	for _, o := range s.ops {
		o.RemoveDependency(op)
	}
}

// Has reports whether op is in the set.
func (s *Set) Has(op *Operation) bool {
	_, ok := s.index[op]
	return ok
}

// Len returns the number of operations.
func (s *Set) Len() int {
	return len(s.ops)
}

// Operations returns the operations in insertion order.
func (s *Set) Operations() []*Operation {
	return append([]*Operation(nil), s.ops...)
}

// Find returns the first operation with the given name.
func (s *Set) Find(name string) (*Operation, bool) {
	for _, op := range s.ops {
		if op.Name == name {
			return op, true
		}
	}
	return nil, false
}
