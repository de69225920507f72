package lsp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/jward/doclink"
)

func (s *Server) initialize(
	ctx *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	root, err := rootOf(params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.root = root
	s.notify = ctx.Notify
	s.mu.Unlock()
	s.log.Infof("initialize: root %s", root)

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      true,
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandRefresh, CommandStatus},
	}

	version := doclink.Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

func rootOf(params *protocol.InitializeParams) (string, error) {
	if params.RootURI != nil && *params.RootURI != "" {
		return uriToPath(*params.RootURI)
	}
	if len(params.WorkspaceFolders) > 0 {
		return uriToPath(params.WorkspaceFolders[0].URI)
	}
	if params.RootPath != nil && *params.RootPath != "" {
		return *params.RootPath, nil
	}
	return "", errors.New("lsp: client sent no workspace root")
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	s.refresh()
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	s.log.Info("shutdown")
	return s.engine.Close()
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) refresh() {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	if root == "" {
		return
	}
	s.engine.Refresh(root)
}

func (s *Server) textDocumentDidOpen(
	ctx *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.buffers[path] = []byte(params.TextDocument.Text)
	s.mu.Unlock()
	return nil
}

func (s *Server) textDocumentDidChange(
	ctx *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	// Full sync: the last change carries the whole document.
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			s.setBuffer(path, c.Text)
		case protocol.TextDocumentContentChangeEvent:
			if c.Range != nil {
				return fmt.Errorf("lsp: incremental change to %s not supported", path)
			}
			s.setBuffer(path, c.Text)
		default:
			return fmt.Errorf("lsp: unexpected change event %T", change)
		}
	}
	return nil
}

func (s *Server) setBuffer(path, text string) {
	s.mu.Lock()
	s.buffers[path] = []byte(text)
	s.mu.Unlock()
}

func (s *Server) textDocumentDidSave(
	ctx *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	s.log.Debugf("saved %s", params.TextDocument.URI)
	s.refresh()
	return nil
}

func (s *Server) textDocumentDidClose(
	ctx *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.buffers, path)
	s.mu.Unlock()
	return nil
}

// enclosing answers the ranked references under a cursor.
func (s *Server) enclosing(doc protocol.TextDocumentIdentifier, pos protocol.Position) ([]doclink.Reference, error) {
	path, err := uriToPath(doc.URI)
	if err != nil {
		return nil, err
	}
	return s.engine.Query().ReferencesEnclosing(s.rel(path), int(pos.Line)), nil
}

func (s *Server) textDocumentHover(
	ctx *glsp.Context,
	params *protocol.HoverParams,
) (*protocol.Hover, error) {
	refs, err := s.enclosing(params.TextDocument, params.Position)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	body, err := s.engine.Query().Preview(context.Background(), refs[0])
	if err != nil {
		// A stale location is not worth an error popup on every hover.
		s.log.Debugf("hover preview: %s", err)
		return nil, nil
	}
	var b strings.Builder
	b.WriteString(body)
	if n := len(refs) - 1; n > 0 {
		fmt.Fprintf(&b, "\n\n---\n%d more reference(s) here", n)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}, nil
}

func (s *Server) textDocumentDefinition(
	ctx *glsp.Context,
	params *protocol.DefinitionParams,
) (any, error) {
	refs, err := s.enclosing(params.TextDocument, params.Position)
	if err != nil {
		return nil, err
	}
	targets := s.engine.Query().Targets(refs)
	locs := make([]protocol.Location, 0, len(targets))
	s.mu.Lock()
	for _, t := range targets {
		locs = append(locs, protocol.Location{
			URI:   pathToURI(s.abs(t.File)),
			Range: lineRange(t.Line - 1),
		})
	}
	s.mu.Unlock()
	return locs, nil
}

func (s *Server) textDocumentCodeLens(
	ctx *glsp.Context,
	params *protocol.CodeLensParams,
) ([]protocol.CodeLens, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	marks := s.engine.Query().GutterMarks(s.rel(path))
	lenses := make([]protocol.CodeLens, 0, len(marks))
	for _, m := range marks {
		lenses = append(lenses, protocol.CodeLens{
			Range: lineRange(m.Line - 1),
			Command: &protocol.Command{
				Title:   lensTitle(m),
				Command: CommandRefresh,
			},
			Data: m.Class,
		})
	}
	return lenses, nil
}

func lensTitle(m doclink.GutterMark) string {
	title := "[" + m.Letter + "]"
	if loc, ok := m.Ref.Primary(); ok {
		title += fmt.Sprintf(" %s:%d", loc.File, loc.Line)
	}
	if n := len(m.Ref.Locations); n > 1 {
		title += fmt.Sprintf(" (+%d)", n-1)
	}
	return title
}

func (s *Server) workspaceExecuteCommand(
	ctx *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	switch params.Command {
	case CommandRefresh:
		s.refresh()
		return nil, nil
	case CommandStatus:
		return s.engine.Status(), nil
	}
	return nil, fmt.Errorf("lsp: unknown command %q", params.Command)
}

func lineRange(line int) protocol.Range {
	if line < 0 {
		line = 0
	}
	pos := protocol.Position{Line: protocol.UInteger(line)}
	return protocol.Range{Start: pos, End: pos}
}
