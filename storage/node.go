package storage

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func marshalNode(node *structpb.Struct) ([]byte, error) {
	if node == nil {
		node = &structpb.Struct{}
	}
	bytes, err := proto.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal node: %w", err)
	}
	return bytes, nil
}

func unmarshalNode(bytes []byte) (*structpb.Struct, error) {
	var node structpb.Struct
	if err := proto.Unmarshal(bytes, &node); err != nil {
		return nil, fmt.Errorf("unmarshal node: %w", err)
	}
	return &node, nil
}

// lookup walks a slash-separated field path inside node.
func lookup(node *structpb.Struct, child string) (*structpb.Value, bool) {
	current := node
	parts := strings.Split(Join(child), "/")
	for i, part := range parts {
		value, ok := current.GetFields()[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		current = value.GetStructValue()
		if current == nil {
			return nil, false
		}
	}
	return nil, false
}

// applyFields sets every field on node, creating intermediate documents
// for slash-separated names.
func applyFields(node *structpb.Struct, fields map[string]any) error {
	for name, raw := range fields {
		value, err := structpb.NewValue(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		parts := strings.Split(Join(name), "/")
		current := node
		for _, part := range parts[:len(parts)-1] {
			if current.Fields == nil {
				current.Fields = map[string]*structpb.Value{}
			}
			next := current.Fields[part].GetStructValue()
			if next == nil {
				next = &structpb.Struct{}
				current.Fields[part] = structpb.NewStructValue(next)
			}
			current = next
		}
		if current.Fields == nil {
			current.Fields = map[string]*structpb.Value{}
		}
		current.Fields[parts[len(parts)-1]] = value
	}
	return nil
}

// indexValue renders a scalar so that equal values of any numeric Go type
// produce the same index key.
func indexValue(value *structpb.Value) (string, bool) {
	switch v := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return "n:" + strconv.FormatFloat(v.NumberValue, 'f', -1, 64), true
	case *structpb.Value_StringValue:
		return "s:" + v.StringValue, true
	case *structpb.Value_BoolValue:
		return "b:" + strconv.FormatBool(v.BoolValue), true
	default:
		return "", false
	}
}

func queryValue(raw any) (string, error) {
	value, err := structpb.NewValue(raw)
	if err != nil {
		return "", fmt.Errorf("query value: %w", err)
	}
	encoded, ok := indexValue(value)
	if !ok {
		return "", fmt.Errorf("query value %v is not a scalar", raw)
	}
	return encoded, nil
}

func matches(node *structpb.Struct, child, want string) bool {
	value, ok := lookup(node, child)
	if !ok {
		return false
	}
	got, ok := indexValue(value)
	return ok && got == want
}

type indexEntry struct {
	index Index
	value string
}

type indexSet []Index

func newIndexSet(indexes []Index) indexSet {
	set := make(indexSet, 0, len(indexes))
	for _, idx := range indexes {
		set = append(set, Index{Path: Join(idx.Path), Child: Join(idx.Child)})
	}
	return set
}

func (s indexSet) find(path, child string) (Index, bool) {
	path, child = Join(path), Join(child)
	for _, idx := range s {
		if idx.Path == path && idx.Child == child {
			return idx, true
		}
	}
	return Index{}, false
}

// entries lists the index values a node at path contributes.
func (s indexSet) entries(path string, node *structpb.Struct) []indexEntry {
	if node == nil {
		return nil
	}
	parent, _ := split(path)
	var out []indexEntry
	for _, idx := range s {
		if idx.Path != parent {
			continue
		}
		value, ok := lookup(node, idx.Child)
		if !ok {
			continue
		}
		if encoded, ok := indexValue(value); ok {
			out = append(out, indexEntry{index: idx, value: encoded})
		}
	}
	return out
}
