package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrNodeNotFound = fmt.Errorf("node not found")

// Tree is a hierarchical key-value store. Nodes live at slash-separated
// paths such as "chats/{id}" or "messages/{chatID}/{messageID}" and hold a
// structpb document. A single call is atomic, a sequence of calls is not.
type Tree interface {
	Get(ctx context.Context, path string) (*structpb.Struct, error)
	Set(ctx context.Context, path string, node *structpb.Struct) error
	// Update merges fields into an existing node. Field names may be
	// slash-separated to reach nested documents.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push stores node under a freshly generated, time-ordered key and
	// returns that key.
	Push(ctx context.Context, path string, node *structpb.Struct) (string, error)
	// Delete removes the node and everything below it. Missing nodes are
	// not an error.
	Delete(ctx context.Context, path string) error
	Children(ctx context.Context, path string) (map[string]*structpb.Struct, error)
	// EqualTo returns the direct children of path whose child field equals
	// value. Declared indexes are used when available.
	EqualTo(ctx context.Context, path, child string, value any) (map[string]*structpb.Struct, error)
}

// Index declares that the children of Path are queried by the Child field.
type Index struct {
	Path  string
	Child string
}

// Join builds a clean tree path from its segments.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// split returns the parent path and the last segment of path.
func split(path string) (string, string) {
	path = Join(path)
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// newKey generates push keys. UUIDv7 keys sort by creation time like
// the push ids of hosted tree databases.
func newKey() string {
	return uuid.Must(uuid.NewV7()).String()
}
