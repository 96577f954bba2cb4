package peer

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Static mapping from owner names to peer base URLs. Safe for concurrent use.
type Directory struct {
	lk    sync.RWMutex
	peers map[string]string
}

func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]string)}
}

// Parses a comma-separated list of owner=url pairs, e.g. "alice=http://10.0.0.2:2480,bob=https://bob.example.com". An empty string gives an empty directory.
func ParseDirectory(s string) (*Directory, error) {
	d := NewDirectory()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		owner, base, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid peer entry %q: expected owner=url", part)
		}
		if err := d.Add(owner, base); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Registers (or replaces) the base URL for an owner.
func (d *Directory) Add(owner, base string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return fmt.Errorf("empty peer owner name")
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return fmt.Errorf("invalid URL for peer %s: %w", owner, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL for peer %s: unsupported scheme %q", owner, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL for peer %s: missing host", owner)
	}

	d.lk.Lock()
	defer d.lk.Unlock()
	d.peers[owner] = strings.TrimSuffix(u.String(), "/")
	return nil
}

func (d *Directory) Lookup(owner string) (string, bool) {
	d.lk.RLock()
	defer d.lk.RUnlock()
	base, ok := d.peers[owner]
	return base, ok
}

// Registered owner names, sorted.
func (d *Directory) Owners() []string {
	d.lk.RLock()
	defer d.lk.RUnlock()
	out := make([]string, 0, len(d.peers))
	for owner := range d.peers {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}
