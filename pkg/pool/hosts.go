package pool

import "sync"

// HostRotation hands out hosts round-robin. The working list is drained from
// the front and refilled from the configured list once empty.
type HostRotation struct {
	mu        sync.Mutex
	hosts     []string
	available []string
}

func NewHostRotation(hosts []string) *HostRotation {
	configured := append([]string(nil), hosts...)
	return &HostRotation{
		hosts:     configured,
		available: append([]string(nil), configured...),
	}
}

// Next returns the next host, or "" when no hosts are configured.
func (r *HostRotation) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.available) == 0 {
		r.available = append(r.available, r.hosts...)
	}
	if len(r.available) == 0 {
		return ""
	}

	host := r.available[0]
	r.available = r.available[1:]
	return host
}

// Hosts returns the configured host list.
func (r *HostRotation) Hosts() []string {
	return append([]string(nil), r.hosts...)
}
