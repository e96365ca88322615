package pool

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

const poolMapStripes = 32

/* pool registry striped by key hash, so lookups for different tenants do not contend */

type poolStripe struct {
	mu    sync.RWMutex
	pools map[string]*tenantPool
}

type poolMap struct {
	stripes [poolMapStripes]poolStripe
}

func newPoolMap() *poolMap {
	m := &poolMap{}
	for i := range m.stripes {
		m.stripes[i].pools = make(map[string]*tenantPool)
	}
	return m
}

func (m *poolMap) stripe(key string) *poolStripe {
	return &m.stripes[murmur3.Sum32([]byte(key))%poolMapStripes]
}

func (m *poolMap) Load(key string) (*tenantPool, bool) {
	s := m.stripe(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[key]
	return p, ok
}

// LoadOrStore keeps the first pool stored under key. loaded is true when
// an existing pool was returned instead of p.
func (m *poolMap) LoadOrStore(key string, p *tenantPool) (actual *tenantPool, loaded bool) {
	s := m.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pools[key]; ok {
		return existing, true
	}
	s.pools[key] = p
	return p, false
}

func (m *poolMap) Len() int {
	n := 0
	for i := range m.stripes {
		s := &m.stripes[i]
		s.mu.RLock()
		n += len(s.pools)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns all pools ordered by key.
func (m *poolMap) Snapshot() []*tenantPool {
	var ret []*tenantPool
	for i := range m.stripes {
		s := &m.stripes[i]
		s.mu.RLock()
		for _, p := range s.pools {
			ret = append(ret, p)
		}
		s.mu.RUnlock()
	}

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].key < ret[j].key
	})
	return ret
}
