package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	nodePrefix  = "n:"
	indexPrefix = "i:"
	// sep never appears in a path segment nor in an indexed value.
	sep = "\x00"
)

// BadgerTree stores every node under "n:{path}" with its protobuf bytes.
// Declared indexes are kept as empty-valued keys
// "i:{path}\x00{child}\x00{value}\x00{key}" written in the same
// transaction as the node.
type BadgerTree struct {
	db      *badger.DB
	log     *slog.Logger
	indexes indexSet
}

func NewBadgerTree(db *badger.DB, log *slog.Logger, indexes ...Index) *BadgerTree {
	return &BadgerTree{db: db, log: log, indexes: newIndexSet(indexes)}
}

func (t *BadgerTree) Get(_ context.Context, path string) (*structpb.Struct, error) {
	var node *structpb.Struct
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = t.read(txn, Join(path))
		return err
	})
	return node, err
}

func (t *BadgerTree) Set(_ context.Context, path string, node *structpb.Struct) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return t.write(txn, Join(path), node)
	})
}

func (t *BadgerTree) Update(_ context.Context, path string, fields map[string]any) error {
	path = Join(path)
	return t.db.Update(func(txn *badger.Txn) error {
		current, err := t.read(txn, path)
		if err != nil {
			return err
		}
		node := proto.Clone(current).(*structpb.Struct)
		if err = applyFields(node, fields); err != nil {
			return err
		}
		return t.write(txn, path, node)
	})
}

func (t *BadgerTree) Push(ctx context.Context, path string, node *structpb.Struct) (string, error) {
	key := newKey()
	if err := t.Set(ctx, Join(path, key), node); err != nil {
		return "", err
	}
	return key, nil
}

func (t *BadgerTree) Delete(_ context.Context, path string) error {
	path = Join(path)
	return t.db.Update(func(txn *badger.Txn) error {
		paths := []string{path}
		prefix := []byte(childPrefix(path))
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			paths = append(paths, strings.TrimPrefix(string(it.Item().KeyCopy(nil)), nodePrefix))
		}
		it.Close()

		for _, p := range paths {
			if err := t.remove(txn, p); err != nil {
				return err
			}
		}
		t.log.Debug("Deleted tree nodes", "path", path, "count", len(paths))
		return nil
	})
}

func (t *BadgerTree) Children(_ context.Context, path string) (map[string]*structpb.Struct, error) {
	children := make(map[string]*structpb.Struct)
	err := t.db.View(func(txn *badger.Txn) error {
		prefix := []byte(childPrefix(Join(path)))
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			// Grandchildren share the prefix, only direct children count.
			if strings.Contains(key, "/") {
				continue
			}
			err := item.Value(func(val []byte) error {
				node, err := unmarshalNode(val)
				if err != nil {
					return err
				}
				children[key] = node
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return children, err
}

func (t *BadgerTree) EqualTo(ctx context.Context, path, child string, value any) (map[string]*structpb.Struct, error) {
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

	result := make(map[string]*structpb.Struct)
	err = t.db.View(func(txn *badger.Txn) error {
		prefix := []byte(indexKeyPrefix(idx, want))
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, key := range keys {
			node, err := t.read(txn, Join(idx.Path, key))
			if errors.Is(err, ErrNodeNotFound) {
				t.log.Warn("Index entry without node", "path", idx.Path, "key", key)
				continue
			}
			if err != nil {
				return err
			}
			result[key] = node
		}
		return nil
	})
	return result, err
}

func (t *BadgerTree) read(txn *badger.Txn, path string) (*structpb.Struct, error) {
	item, err := txn.Get([]byte(nodePrefix + path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var node *structpb.Struct
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = unmarshalNode(val)
		return decodeErr
	})
	return node, err
}

func (t *BadgerTree) write(txn *badger.Txn, path string, node *structpb.Struct) error {
	previous, err := t.read(txn, path)
	if err != nil && !errors.Is(err, ErrNodeNotFound) {
		return err
	}
	_, key := split(path)
	for _, e := range t.indexes.entries(path, previous) {
		if err = txn.Delete([]byte(indexKeyPrefix(e.index, e.value) + key)); err != nil {
			return err
		}
	}
	bytes, err := marshalNode(node)
	if err != nil {
		return err
	}
	if err = txn.Set([]byte(nodePrefix+path), bytes); err != nil {
		return err
	}
	for _, e := range t.indexes.entries(path, node) {
		if err = txn.Set([]byte(indexKeyPrefix(e.index, e.value)+key), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func (t *BadgerTree) remove(txn *badger.Txn, path string) error {
	previous, err := t.read(txn, path)
	if errors.Is(err, ErrNodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, key := split(path)
	for _, e := range t.indexes.entries(path, previous) {
		if err = txn.Delete([]byte(indexKeyPrefix(e.index, e.value) + key)); err != nil {
			return err
		}
	}
	return txn.Delete([]byte(nodePrefix + path))
}

func childPrefix(path string) string {
	if path == "" {
		return nodePrefix
	}
	return nodePrefix + path + "/"
}

func indexKeyPrefix(idx Index, value string) string {
	return indexPrefix + idx.Path + sep + idx.Child + sep + value + sep
}
