// Package config loads cost-model documents from disk. JSON and YAML are
// both accepted; parse failures carry the file, line, and column with a
// caret snippet pointing at the offending byte.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
)

// ParseFileError is a document syntax error positioned in its source file.
type ParseFileError struct {
	Path    string
	Line    int
	Col     int
	Msg     string
	Snippet string
}

func (e *ParseFileError) Error() string {
	s := fmt.Sprintf("parsing %s at line %d, column %d: %s", e.Path, e.Line, e.Col, e.Msg)
	if e.Snippet != "" {
		s += "\n\n" + e.Snippet + "\n" + strings.Repeat(" ", e.Col) + "^"
	}
	return s
}

// Load reads and decodes a model document. The format follows the file
// extension: .yaml/.yml is YAML, everything else JSON.
func Load(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model document: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(path, data)
	default:
		return decodeJSON(path, data)
	}
}

func decodeJSON(path string, data []byte) (*model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			// Offset counts the offending byte itself; step back onto it.
			line, col, snippet := locate(data, max(int(syn.Offset)-1, 0))
			return nil, &ParseFileError{Path: path, Line: line, Col: col, Msg: syn.Error(), Snippet: snippet}
		}
		var typ *json.UnmarshalTypeError
		if errors.As(err, &typ) {
			line, col, snippet := locate(data, int(typ.Offset))
			return nil, &ParseFileError{Path: path, Line: line, Col: col, Msg: typ.Error(), Snippet: snippet}
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &doc, nil
}

// decodeYAML decodes through a yaml.Node and re-encodes to JSON so the
// document's ordered-map decoding applies to both formats. yaml.v3 maps
// would scramble key order; the node tree preserves it.
func decodeYAML(path string, data []byte) (*model.Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		line, col := yamlErrorPosition(err)
		snippet := ""
		if line > 0 {
			_, _, snippet = locate(data, offsetOfLine(data, line, col))
		}
		return nil, &ParseFileError{Path: path, Line: line, Col: col, Msg: err.Error(), Snippet: snippet}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, fmt.Errorf("parsing %s: empty document", path)
	}
	jsonBytes, err := nodeToJSON(root.Content[0])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return decodeJSON(path, jsonBytes)
}

// nodeToJSON renders a YAML node tree as JSON, preserving mapping order.
func nodeToJSON(n *yaml.Node) ([]byte, error) {
	switch n.Kind {
	case yaml.MappingNode:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return nil, err
			}
			val, err := nodeToJSON(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case yaml.SequenceNode:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			val, err := nodeToJSON(c)
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return json.Marshal(v)

	case yaml.AliasNode:
		return nodeToJSON(n.Alias)
	}
	return nil, fmt.Errorf("unsupported YAML node kind %d at line %d", n.Kind, n.Line)
}

// yamlErrorPosition digs the "line N" position out of a yaml.v3 error
// message; the library does not expose it structurally.
func yamlErrorPosition(err error) (line, col int) {
	msg := err.Error()
	if i := strings.Index(msg, "line "); i >= 0 {
		fmt.Sscanf(msg[i:], "line %d", &line)
	}
	return line, 0
}

// locate converts a byte offset into a 1-based line, 0-based column, and
// the line's text.
func locate(data []byte, offset int) (line, col int, text string) {
	if offset > len(data) {
		offset = len(data)
	}
	lines := bytes.Split(data, []byte("\n"))
	pos := 0
	for i, l := range lines {
		if pos+len(l)+1 > offset {
			return i + 1, offset - pos, string(l)
		}
		pos += len(l) + 1
	}
	return len(lines), 0, ""
}

// offsetOfLine returns the byte offset of the given 1-based line and
// 0-based column.
func offsetOfLine(data []byte, line, col int) int {
	pos := 0
	current := 1
	for pos < len(data) && current < line {
		if data[pos] == '\n' {
			current++
		}
		pos++
	}
	return pos + col
}
