package jobs

import "sync"

// ActiveSet tracks scratch entries that belong to requests still running
type ActiveSet struct {
	mu    sync.Mutex
	names map[string]int
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{names: make(map[string]int)}
}

// Track marks name as in use until the returned func is called
func (a *ActiveSet) Track(name string) func() {
	a.mu.Lock()
	a.names[name]++
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.names[name]--; a.names[name] <= 0 {
				delete(a.names, name)
			}
		})
	}
}

// IfIdle runs fn while holding the set, unless name is tracked. A nil set is
// always idle.
func (a *ActiveSet) IfIdle(name string, fn func() error) (bool, error) {
	if a == nil {
		return true, fn()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.names[name] > 0 {
		return false, nil
	}
	return true, fn()
}
