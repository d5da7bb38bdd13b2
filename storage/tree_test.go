package storage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

var testIndexes = []Index{{Path: "chats", Child: "participants/first/id"}}

func TestBadgerTree(t *testing.T) {
	runTreeContract(t, func(t *testing.T) Tree {
		db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewBadgerTree(db, logs.GetLoggerFromLevel(slog.LevelDebug), testIndexes...)
	})
}

func TestRedisTree(t *testing.T) {
	runTreeContract(t, func(t *testing.T) Tree {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisTree(client, logs.GetLoggerFromLevel(slog.LevelDebug), "test:", testIndexes...)
	})
}

func TestMemoryTree(t *testing.T) {
	runTreeContract(t, func(t *testing.T) Tree {
		return NewMemoryTree()
	})
}

func chatNode(t *testing.T, first, second int64) *structpb.Struct {
	node, err := structpb.NewStruct(map[string]any{
		"participants": map[string]any{
			"first":  map[string]any{"id": first, "username": "u"},
			"second": map[string]any{"id": second, "username": "v"},
		},
		"created_at": "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	return node
}

func runTreeContract(t *testing.T, newTree func(t *testing.T) Tree) {
	ctx := context.Background()

	t.Run("should return not found for a missing node", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)

		_, err := tree.Get(ctx, "chats/missing")
		req.ErrorIs(err, ErrNodeNotFound)
	})

	t.Run("should store and read back a node", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		node := chatNode(t, 1, 2)

		req.NoError(tree.Set(ctx, "/chats/abc/", node))

		got, err := tree.Get(ctx, "chats/abc")
		req.NoError(err)
		req.Equal(node.AsMap(), got.AsMap())
	})

	t.Run("should merge fields on update", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		req.NoError(tree.Set(ctx, "chats/abc", chatNode(t, 1, 2)))

		err := tree.Update(ctx, "chats/abc", map[string]any{
			"updated_at":                   "2026-01-02T00:00:00Z",
			"participants/second/username": "renamed",
		})
		req.NoError(err)

		got, err := tree.Get(ctx, "chats/abc")
		req.NoError(err)
		req.Equal("2026-01-02T00:00:00Z", got.GetFields()["updated_at"].GetStringValue())
		req.Equal("2026-01-01T00:00:00Z", got.GetFields()["created_at"].GetStringValue())
		second, ok := lookup(got, "participants/second/username")
		req.True(ok)
		req.Equal("renamed", second.GetStringValue())
	})

	t.Run("should fail to update a missing node", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)

		err := tree.Update(ctx, "chats/missing", map[string]any{"updated_at": "now"})
		req.ErrorIs(err, ErrNodeNotFound)
	})

	t.Run("should push under distinct keys and list direct children only", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		content, err := structpb.NewStruct(map[string]any{"content": "hi"})
		req.NoError(err)

		first, err := tree.Push(ctx, "messages/chat1", content)
		req.NoError(err)
		second, err := tree.Push(ctx, "messages/chat1", content)
		req.NoError(err)
		_, err = tree.Push(ctx, "messages/chat2", content)
		req.NoError(err)
		req.NotEqual(first, second)

		children, err := tree.Children(ctx, "messages/chat1")
		req.NoError(err)
		req.Len(children, 2)
		req.Contains(children, first)
		req.Contains(children, second)

		// "messages/chat1" holds children but is not a node itself.
		topLevel, err := tree.Children(ctx, "messages")
		req.NoError(err)
		req.Empty(topLevel)
	})

	t.Run("should delete a node and its subtree", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		content, err := structpb.NewStruct(map[string]any{"content": "hi"})
		req.NoError(err)
		key, err := tree.Push(ctx, "messages/chat1", content)
		req.NoError(err)
		other, err := tree.Push(ctx, "messages/chat1", content)
		req.NoError(err)

		req.NoError(tree.Delete(ctx, Join("messages/chat1", key)))
		_, err = tree.Get(ctx, Join("messages/chat1", key))
		req.ErrorIs(err, ErrNodeNotFound)
		children, err := tree.Children(ctx, "messages/chat1")
		req.NoError(err)
		req.Len(children, 1)
		req.Contains(children, other)

		req.NoError(tree.Delete(ctx, "messages/chat1"))
		children, err = tree.Children(ctx, "messages/chat1")
		req.NoError(err)
		req.Empty(children)

		req.NoError(tree.Delete(ctx, "messages/never-existed"))
	})

	t.Run("should query children by an indexed field", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		a, err := tree.Push(ctx, "chats", chatNode(t, 1, 2))
		req.NoError(err)
		b, err := tree.Push(ctx, "chats", chatNode(t, 1, 3))
		req.NoError(err)
		_, err = tree.Push(ctx, "chats", chatNode(t, 2, 3))
		req.NoError(err)

		found, err := tree.EqualTo(ctx, "chats", "participants/first/id", int64(1))
		req.NoError(err)
		req.Len(found, 2)
		req.Contains(found, a)
		req.Contains(found, b)

		// A float query matches the same number.
		found, err = tree.EqualTo(ctx, "chats", "participants/first/id", 1.0)
		req.NoError(err)
		req.Len(found, 2)
	})

	t.Run("should query children by a non indexed field", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		_, err := tree.Push(ctx, "chats", chatNode(t, 1, 2))
		req.NoError(err)
		c, err := tree.Push(ctx, "chats", chatNode(t, 2, 3))
		req.NoError(err)

		found, err := tree.EqualTo(ctx, "chats", "participants/second/id", 3)
		req.NoError(err)
		req.Len(found, 1)
		req.Contains(found, c)
	})

	t.Run("should keep the index in step with updates and deletes", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)
		key, err := tree.Push(ctx, "chats", chatNode(t, 1, 2))
		req.NoError(err)

		req.NoError(tree.Update(ctx, Join("chats", key), map[string]any{"participants/first/id": int64(5)}))

		found, err := tree.EqualTo(ctx, "chats", "participants/first/id", 1)
		req.NoError(err)
		req.Empty(found)
		found, err = tree.EqualTo(ctx, "chats", "participants/first/id", 5)
		req.NoError(err)
		req.Len(found, 1)

		req.NoError(tree.Delete(ctx, Join("chats", key)))
		found, err = tree.EqualTo(ctx, "chats", "participants/first/id", 5)
		req.NoError(err)
		req.Empty(found)
	})

	t.Run("should reject a non scalar query value", func(t *testing.T) {
		req := require.New(t)
		tree := newTree(t)

		_, err := tree.EqualTo(ctx, "chats", "participants/first/id", map[string]any{"id": 1})
		req.Error(err)
	})
}

func TestJoin(t *testing.T) {
	req := require.New(t)
	req.Equal("messages/c1/m1", Join("/messages/", "c1", "", "m1/"))
	req.Equal("", Join())

	parent, key := split("messages/c1/m1")
	req.Equal("messages/c1", parent)
	req.Equal("m1", key)

	parent, key = split("chats")
	req.Equal("", parent)
	req.Equal("chats", key)
}
