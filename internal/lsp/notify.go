package lsp

import (
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/jward/doclink"
)

var _ doclink.Listener = (*Server)(nil)

// Server-to-client notifications.
const (
	methodPublishDiagnostics = "textDocument/publishDiagnostics"
	methodShowMessage        = "window/showMessage"
	methodLogMessage         = "window/logMessage"
)

// send forwards a notification to the client once one is connected.
func (s *Server) send(method string, params any) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify == nil {
		return
	}
	notify(method, params)
}

// ReferencesResolved is not used: lazy loads are synchronous here.
func (s *Server) ReferencesResolved(file string, line int, refs []doclink.Reference) {}

func (s *Server) RefreshSucceeded() {
	s.log.Debug("refresh applied")
}

func (s *Server) RefreshFailed(errs []doclink.ReportedError) {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	s.send(methodShowMessage, protocol.ShowMessageParams{
		Type:    protocol.MessageTypeError,
		Message: "doclink: " + strings.Join(msgs, "; "),
	})
	// Errors that point into markdown files are shown in place, next to
	// the not-found warnings of the index that is still being served.
	byFile := notFoundDiagnostics(s.engine.Query().NotFound())
	for _, e := range errs {
		for _, loc := range e.Locations {
			byFile[loc.File] = append(byFile[loc.File], diagnostic(loc.Line, e.Message, protocol.DiagnosticSeverityError))
		}
	}
	s.publish(byFile)
}

func (s *Server) FetchFailed(file string, errs []doclink.ReportedError) {
	for _, e := range errs {
		s.send(methodLogMessage, protocol.LogMessageParams{
			Type:    protocol.MessageTypeWarning,
			Message: "doclink: loading " + file + ": " + e.Error(),
		})
	}
}

// NotFoundUpdated publishes every unresolved reference as a warning on
// each markdown line that links to it.
func (s *Server) NotFoundUpdated(notFound []doclink.NotFound) {
	s.publish(notFoundDiagnostics(notFound))
}

func notFoundDiagnostics(notFound []doclink.NotFound) map[string][]protocol.Diagnostic {
	byFile := map[string][]protocol.Diagnostic{}
	for _, nf := range notFound {
		for _, loc := range nf.Locations {
			byFile[loc.File] = append(byFile[loc.File], diagnostic(loc.Line, nf.Reason, protocol.DiagnosticSeverityWarning))
		}
	}
	return byFile
}

// publish replaces the diagnostics of every doc file, clearing files that
// no longer have any.
func (s *Server) publish(byFile map[string][]protocol.Diagnostic) {
	s.mu.Lock()
	for f := range s.published {
		if _, ok := byFile[f]; !ok {
			byFile[f] = []protocol.Diagnostic{}
		}
	}
	s.published = make(map[string]bool, len(byFile))
	files := make([]string, 0, len(byFile))
	uris := make(map[string]string, len(byFile))
	for f, diags := range byFile {
		if len(diags) > 0 {
			s.published[f] = true
		}
		files = append(files, f)
		uris[f] = pathToURI(s.abs(f))
	}
	s.mu.Unlock()

	sort.Strings(files)
	for _, f := range files {
		s.send(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         uris[f],
			Diagnostics: byFile[f],
		})
	}
}

func diagnostic(line int, msg string, severity protocol.DiagnosticSeverity) protocol.Diagnostic {
	source := serverName
	return protocol.Diagnostic{
		Range:    lineRange(line - 1),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}
