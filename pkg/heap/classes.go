package heap

import "sync"

// ClassRegistry maps class ids to parent class ids. Registration may happen
// from any goroutine that allocates objects, so access is lock-protected.
type ClassRegistry struct {
	mu      sync.RWMutex
	parents map[uint32]uint32
}

func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{parents: make(map[uint32]uint32)}
}

// Register records child's parent. A parent of 0 marks a root class.
func (r *ClassRegistry) Register(child, parent uint32) {
	r.mu.Lock()
	r.parents[child] = parent
	r.mu.Unlock()
}

func (r *ClassRegistry) Parent(id uint32) (uint32, bool) {
	r.mu.RLock()
	p, ok := r.parents[id]
	r.mu.RUnlock()
	return p, ok
}

func (r *ClassRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parents)
}

// IsSubclass reports whether ancestor is child or one of its registered
// ancestors. The walk stops at a root, an unknown class, or after as many
// steps as there are registered classes, which also breaks cycles.
func (r *ClassRegistry) IsSubclass(child, ancestor uint32) bool {
	if child == ancestor {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur := child
	for steps := 0; steps <= len(r.parents); steps++ {
		p, ok := r.parents[cur]
		if !ok || p == 0 {
			return false
		}
		if p == ancestor {
			return true
		}
		cur = p
	}
	return false
}
