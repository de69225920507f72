// Package lsp serves the reference index to editors over the Language
// Server Protocol: hovers preview the documentation attached to the code
// under the cursor, go-to-definition jumps to it, code lenses carry the
// gutter marks and unresolved references are published as diagnostics on
// the markdown files that contain them.
package lsp

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/jward/doclink"
)

const serverName = "doclink"

// Commands accepted by workspace/executeCommand.
const (
	CommandRefresh = "doclink.refresh"
	CommandStatus  = "doclink.status"
)

// Server adapts a doclink.Engine to LSP requests.
type Server struct {
	handler protocol.Handler
	engine  *doclink.Engine
	log     commonlog.Logger

	mu        sync.Mutex
	root      string
	notify    glsp.NotifyFunc
	buffers   map[string][]byte // open documents by absolute path
	published map[string]bool   // doc files carrying diagnostics
}

// New creates a Server that scans through client.
func New(client doclink.Client) *Server {
	s := &Server{
		log:       commonlog.GetLogger("doclink.lsp"),
		buffers:   make(map[string][]byte),
		published: make(map[string]bool),
	}
	s.engine = doclink.New(client,
		doclink.WithListener(s),
		doclink.WithTextSource(s.text),
	)
	s.handler = protocol.Handler{
		Initialize:              s.initialize,
		Initialized:             s.initialized,
		Shutdown:                s.shutdown,
		SetTrace:                s.setTrace,
		TextDocumentDidOpen:     s.textDocumentDidOpen,
		TextDocumentDidChange:   s.textDocumentDidChange,
		TextDocumentDidSave:     s.textDocumentDidSave,
		TextDocumentDidClose:    s.textDocumentDidClose,
		TextDocumentHover:       s.textDocumentHover,
		TextDocumentDefinition:  s.textDocumentDefinition,
		TextDocumentCodeLens:    s.textDocumentCodeLens,
		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
	}
	return s
}

// Engine returns the Engine behind the server.
func (s *Server) Engine() *doclink.Engine {
	return s.engine
}

// RunStdio serves one client over stdin/stdout until it disconnects.
func (s *Server) RunStdio() error {
	defer s.engine.Close()
	return server.NewServer(&s.handler, serverName, false).RunStdio()
}

// text serves open buffers before falling back to disk, so spans are
// translated against what the editor shows.
func (s *Server) text(file string) ([]byte, error) {
	s.mu.Lock()
	root := s.root
	abs := s.abs(file)
	buf, ok := s.buffers[abs]
	s.mu.Unlock()
	if ok {
		return buf, nil
	}
	return doclink.DiskSource(root)(file)
}

// abs resolves a project-relative path. Callers hold s.mu.
func (s *Server) abs(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(s.root, filepath.FromSlash(file))
}

// rel turns an absolute path into the project-relative, slash-separated
// form the index is keyed by. Paths outside the root are returned as is.
func (s *Server) rel(path string) string {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	if root == "" {
		return filepath.ToSlash(path)
	}
	r, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

func uriToPath(uri protocol.DocumentUri) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("lsp: parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("lsp: unsupported uri scheme %q", u.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

func pathToURI(path string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
