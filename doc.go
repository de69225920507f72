// Package doclink keeps an editor-side index of links between source code
// and the markdown documentation that describes it.
//
// Documentation files point at code with markdown links that use the code:
// scheme:
//
//	[code_todo](code:internal/engine.go#Engine.Refresh)
//
// A scanner reads every such link and resolves it to a byte span in the
// source file. The Engine keeps the result of the newest scan and answers,
// for any cursor position, which documented spans enclose it.
//
// # Usage
//
//	client, err := doclink.NewLocalClient()
//	if err != nil { ... }
//	defer client.Close()
//
//	e := doclink.New(client, doclink.WithListener(myListener))
//	defer e.Close()
//
//	e.Refresh("path/to/project") // returns at once
//	e.Wait()
//
//	q := e.Query()
//	refs := q.ReferencesEnclosing("internal/engine.go", 41)
//
// # Refresh
//
// [Engine.Refresh] is fire-and-forget. Each call starts a new scan
// generation; when several scans overlap only the newest generation's
// result is applied and the others are dropped without notice, failures
// included. A failed refresh leaves the previous index in place and hands
// normalized errors to the [Listener].
//
// # Query API
//
//   - [QueryBuilder.ReferencesEnclosing]: references whose line range
//     contains a line, most specific (narrowest span) first.
//   - [QueryBuilder.GutterMarks]: one marker per found reference.
//   - [QueryBuilder.NotFound]: links the scanner could not resolve.
//   - [QueryBuilder.Preview]: the documentation block of a reference.
//   - [QueryBuilder.Targets]: documentation locations to navigate to.
//
// A file queried before any scan loaded it is fetched on demand. A lazy
// load never overwrites the result of a refresh that completed while it
// was in flight.
package doclink
