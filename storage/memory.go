package storage

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MemoryTree keeps nodes in a map. Queries always scan, indexes are not
// needed at this size. Nodes are cloned on the way in and out so callers
// never share state with the tree.
type MemoryTree struct {
	mu    sync.RWMutex
	nodes map[string]*structpb.Struct
}

func NewMemoryTree() *MemoryTree {
	return &MemoryTree{nodes: make(map[string]*structpb.Struct)}
}

func (t *MemoryTree) Get(_ context.Context, path string) (*structpb.Struct, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[Join(path)]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return clone(node), nil
}

func (t *MemoryTree) Set(_ context.Context, path string, node *structpb.Struct) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[Join(path)] = clone(node)
	return nil
}

func (t *MemoryTree) Update(_ context.Context, path string, fields map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.nodes[Join(path)]
	if !ok {
		return ErrNodeNotFound
	}
	node := clone(current)
	if err := applyFields(node, fields); err != nil {
		return err
	}
	t.nodes[Join(path)] = node
	return nil
}

func (t *MemoryTree) Push(ctx context.Context, path string, node *structpb.Struct) (string, error) {
	key := newKey()
	return key, t.Set(ctx, Join(path, key), node)
}

func (t *MemoryTree) Delete(_ context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	path = Join(path)
	prefix := path + "/"
	for p := range t.nodes {
		if p == path || path == "" || strings.HasPrefix(p, prefix) {
			delete(t.nodes, p)
		}
	}
	return nil
}

func (t *MemoryTree) Children(_ context.Context, path string) (map[string]*structpb.Struct, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path = Join(path)
	children := make(map[string]*structpb.Struct)
	for p, node := range t.nodes {
		if parent, key := split(p); parent == path {
			children[key] = clone(node)
		}
	}
	return children, nil
}

func (t *MemoryTree) EqualTo(ctx context.Context, path, child string, value any) (map[string]*structpb.Struct, error) {
	want, err := queryValue(value)
	if err != nil {
		return nil, err
	}
	children, err := t.Children(ctx, path)
	if err != nil {
		return nil, err
	}
	for key, node := range children {
		if !matches(node, child, want) {
			delete(children, key)
		}
	}
	return children, nil
}

func clone(node *structpb.Struct) *structpb.Struct {
	if node == nil {
		return &structpb.Struct{}
	}
	return proto.Clone(node).(*structpb.Struct)
}
