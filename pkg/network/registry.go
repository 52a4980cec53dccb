package network

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/maruel/natural"
)

// Node is a switch together with the driver that programs it.
type Node struct {
	Address string       `json:"address"`
	OEM     string       `json:"oem"`
	Role    string       `json:"role"`
	Driver  DeviceDriver `json:"-"`
}

// Registry maps switch management IPs to drivers.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]*Node),
	}
}

// Add registers a node. Returns error if the address is already taken.
func (r *Registry) Add(n Node) error {
	if n.Address == "" {
		return errors.New("node address is empty")
	}
	if n.Driver == nil {
		return fmt.Errorf("node %q has no driver", n.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.Address]; exists {
		return fmt.Errorf("node %q already registered", n.Address)
	}
	r.nodes[n.Address] = &n
	return nil
}

// Remove unregisters a node by address.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, addr)
}

// Get returns a node by address.
func (r *Registry) Get(addr string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[addr]
	if !ok {
		return Node{}, fmt.Errorf("%s: %w", addr, ErrUnknownDevice)
	}
	return *n, nil
}

// DriverFor returns the driver registered for the address.
func (r *Registry) DriverFor(addr string) (DeviceDriver, error) {
	n, err := r.Get(addr)
	if err != nil {
		return nil, err
	}
	return n.Driver, nil
}

// List returns all registered nodes in natural address order.
func (r *Registry) List() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return natural.Less(out[i].Address, out[j].Address) })
	return out
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Close ends any driver sessions. All drivers are closed even when some fail.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, n := range r.List() {
		c, ok := n.Driver.(SessionCloser)
		if !ok {
			continue
		}
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", n.Address, err))
		}
	}
	return errors.Join(errs...)
}
