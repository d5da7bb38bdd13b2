package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// RedisTree keeps each node as a string key holding protobuf bytes. Every
// parent path owns a set of its child keys so subtrees can be listed
// without SCAN, and declared indexes are sets of keys per value. The
// node, its parent sets and its index sets change in one MULTI block.
type RedisTree struct {
	client  *redis.Client
	log     *slog.Logger
	prefix  string
	indexes indexSet
}

func NewRedisTree(client *redis.Client, log *slog.Logger, prefix string, indexes ...Index) *RedisTree {
	return &RedisTree{client: client, log: log, prefix: prefix, indexes: newIndexSet(indexes)}
}

func (t *RedisTree) Get(ctx context.Context, path string) (*structpb.Struct, error) {
	return t.read(ctx, Join(path))
}

func (t *RedisTree) Set(ctx context.Context, path string, node *structpb.Struct) error {
	path = Join(path)
	previous, err := t.read(ctx, path)
	if err != nil && !errors.Is(err, ErrNodeNotFound) {
		return err
	}
	return t.write(ctx, path, previous, node)
}

// Update reads then writes. Concurrent updates of the same node are last
// writer wins, like the rest of the tree.
func (t *RedisTree) Update(ctx context.Context, path string, fields map[string]any) error {
	path = Join(path)
	current, err := t.read(ctx, path)
	if err != nil {
		return err
	}
	node := proto.Clone(current).(*structpb.Struct)
	if err = applyFields(node, fields); err != nil {
		return err
	}
	return t.write(ctx, path, current, node)
}

func (t *RedisTree) Push(ctx context.Context, path string, node *structpb.Struct) (string, error) {
	key := newKey()
	if err := t.write(ctx, Join(path, key), nil, node); err != nil {
		return "", err
	}
	return key, nil
}

func (t *RedisTree) Delete(ctx context.Context, path string) error {
	path = Join(path)
	paths, err := t.subtree(ctx, path)
	if err != nil {
		return err
	}
	nodes := make(map[string]*structpb.Struct, len(paths))
	for _, p := range paths {
		node, err := t.read(ctx, p)
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		nodes[p] = node
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range paths {
			parent, key := split(p)
			for _, e := range t.indexes.entries(p, nodes[p]) {
				pipe.SRem(ctx, t.indexKey(e), key)
			}
			pipe.Del(ctx, t.nodeKey(p), t.childrenKey(p))
			if p == path && path != "" {
				pipe.SRem(ctx, t.childrenKey(parent), key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	t.log.Debug("Deleted tree nodes", "path", path, "count", len(nodes))
	return nil
}

func (t *RedisTree) Children(ctx context.Context, path string) (map[string]*structpb.Struct, error) {
	path = Join(path)
	keys, err := t.client.SMembers(ctx, t.childrenKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	return t.readAll(ctx, path, keys)
}

func (t *RedisTree) EqualTo(ctx context.Context, path, child string, value any) (map[string]*structpb.Struct, error) {
	want, err := queryValue(value)
	if err != nil {
		return nil, err
	}
	idx, ok := t.indexes.find(path, child)
	if !ok {
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
	keys, err := t.client.SMembers(ctx, t.indexKey(indexEntry{index: idx, value: want})).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", idx.Path, idx.Child, err)
	}
	return t.readAll(ctx, idx.Path, keys)
}

func (t *RedisTree) read(ctx context.Context, path string) (*structpb.Struct, error) {
	bytes, err := t.client.Get(ctx, t.nodeKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return unmarshalNode(bytes)
}

func (t *RedisTree) readAll(ctx context.Context, parent string, keys []string) (map[string]*structpb.Struct, error) {
	nodes := make(map[string]*structpb.Struct, len(keys))
	if len(keys) == 0 {
		return nodes, nil
	}
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = t.nodeKey(Join(parent, key))
	}
	values, err := t.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read children of %s: %w", parent, err)
	}
	for i, raw := range values {
		// Intermediate paths such as "messages/{chatID}" have children but no node.
		s, ok := raw.(string)
		if !ok {
			continue
		}
		node, err := unmarshalNode([]byte(s))
		if err != nil {
			return nil, err
		}
		nodes[keys[i]] = node
	}
	return nodes, nil
}

func (t *RedisTree) write(ctx context.Context, path string, previous, node *structpb.Struct) error {
	bytes, err := marshalNode(node)
	if err != nil {
		return err
	}
	_, key := split(path)
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range t.indexes.entries(path, previous) {
			pipe.SRem(ctx, t.indexKey(e), key)
		}
		pipe.Set(ctx, t.nodeKey(path), bytes, 0)
		for p := path; ; {
			parent, segment := split(p)
			if parent == "" && segment == p {
				pipe.SAdd(ctx, t.childrenKey(""), segment)
				break
			}
			pipe.SAdd(ctx, t.childrenKey(parent), segment)
			p = parent
		}
		for _, e := range t.indexes.entries(path, node) {
			pipe.SAdd(ctx, t.indexKey(e), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// subtree lists path and all of its descendants through the children sets.
func (t *RedisTree) subtree(ctx context.Context, path string) ([]string, error) {
	paths := []string{path}
	for i := 0; i < len(paths); i++ {
		keys, err := t.client.SMembers(ctx, t.childrenKey(paths[i])).Result()
		if err != nil {
			return nil, fmt.Errorf("list subtree of %s: %w", paths[i], err)
		}
		for _, key := range keys {
			paths = append(paths, Join(paths[i], key))
		}
	}
	return paths, nil
}

func (t *RedisTree) nodeKey(path string) string {
	return t.prefix + "n:" + path
}

func (t *RedisTree) childrenKey(path string) string {
	return t.prefix + "c:" + path
}

func (t *RedisTree) indexKey(e indexEntry) string {
	return t.prefix + "i:" + e.index.Path + sep + e.index.Child + sep + e.value
}
