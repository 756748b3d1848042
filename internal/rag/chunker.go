// Package rag indexes the workspace for semantic code search. Source files
// are chunked into functions and types with tree-sitter, embedded, and
// stored in the local chunk store; queries embed the question and rank
// chunks by cosine similarity.
package rag

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"

	"simplecoder/internal/store"
)

// Chunker extracts indexable chunks from one language's source files.
type Chunker interface {
	// Extensions returns the file extensions this chunker handles.
	Extensions() []string

	// Chunk parses content and returns its functions, types and classes.
	Chunk(path string, content []byte) ([]store.Chunk, error)
}

// GoChunker chunks Go source with tree-sitter.
type GoChunker struct {
	parser *sitter.Parser
}

// NewGoChunker creates a tree-sitter backed Go chunker.
func NewGoChunker() *GoChunker {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	return &GoChunker{parser: parser}
}

// Extensions returns [".go"].
func (c *GoChunker) Extensions() []string {
	return []string{".go"}
}

// Chunk extracts functions, methods and type declarations.
func (c *GoChunker) Chunk(path string, content []byte) ([]store.Chunk, error) {
	tree, err := c.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var chunks []store.Chunk
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			chunks = appendChunk(chunks, path, "function", nodeName(node, content), node, content)
		case "method_declaration":
			chunks = appendChunk(chunks, path, "method", nodeName(node, content), node, content)
		case "type_declaration":
			// type blocks can declare several types; index the block once
			// under its first spec's name
			name := ""
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() == "type_spec" {
					name = nodeName(spec, content)
					break
				}
			}
			if name != "" {
				chunks = appendChunk(chunks, path, "type", name, node, content)
			}
		}
	}
	return chunks, nil
}

// PythonChunker chunks Python source with tree-sitter.
type PythonChunker struct {
	parser *sitter.Parser
}

// NewPythonChunker creates a tree-sitter backed Python chunker.
func NewPythonChunker() *PythonChunker {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &PythonChunker{parser: parser}
}

// Extensions returns [".py"].
func (c *PythonChunker) Extensions() []string {
	return []string{".py"}
}

// Chunk extracts top-level functions and classes. Methods stay inside
// their class chunk, matching how a reader navigates Python code.
func (c *PythonChunker) Chunk(path string, content []byte) ([]store.Chunk, error) {
	tree, err := c.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var chunks []store.Chunk
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_definition":
			chunks = appendChunk(chunks, path, "function", nodeName(node, content), node, content)
		case "class_definition":
			chunks = appendChunk(chunks, path, "class", nodeName(node, content), node, content)
		case "decorated_definition":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				inner := node.NamedChild(j)
				switch inner.Type() {
				case "function_definition":
					chunks = appendChunk(chunks, path, "function", nodeName(inner, content), node, content)
				case "class_definition":
					chunks = appendChunk(chunks, path, "class", nodeName(inner, content), node, content)
				}
			}
		}
	}
	return chunks, nil
}

func nodeName(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return string(content[nameNode.StartByte():nameNode.EndByte()])
}

func appendChunk(chunks []store.Chunk, path, kind, name string, node *sitter.Node, content []byte) []store.Chunk {
	if name == "" {
		return chunks
	}
	text := string(content[node.StartByte():node.EndByte()])
	if strings.TrimSpace(text) == "" {
		return chunks
	}
	return append(chunks, store.Chunk{
		File:      path,
		Name:      name,
		Kind:      kind,
		StartLine: int(node.StartPoint().Row) + 1,
		Content:   text,
	})
}
