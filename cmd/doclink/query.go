package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/doclink"
)

var flagPreview bool

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a project and report what was indexed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

var refsCmd = &cobra.Command{
	Use:   "refs <file> <line>",
	Short: "List the documentation references enclosing a line",
	Long:  "Lists the references whose span covers the line, most specific first. Lines are 0-based.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRefs,
}

var gutterCmd = &cobra.Command{
	Use:   "gutter <file>",
	Short: "List the gutter marks of a source file",
	Long:  "Lists one mark per resolved reference of the file. Mark lines are 1-based.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGutter,
}

var notFoundCmd = &cobra.Command{
	Use:   "notfound",
	Short: "List references whose code target could not be resolved",
	Args:  cobra.NoArgs,
	RunE:  runNotFound,
}

func init() {
	refsCmd.Flags().BoolVar(&flagPreview, "preview", false, "include the documentation block of each reference")
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return outputError("scan", err)
	}
	s, err := openSession(root)
	if err != nil {
		return outputError("scan", err)
	}
	defer s.Close()

	st := s.engine.Status()
	result := CLIScan{
		Root:       st.Root,
		State:      st.StateName,
		Generation: st.Generation,
		NotFound:   st.NotFound,
		Errors:     st.Errors,
	}
	if st.State == doclink.Failed {
		if err := outputResult(CLIResult{Command: "scan", Results: result}); err != nil {
			return err
		}
		errorHandled = true
		return scanFailure(st.Errors)
	}
	stats, err := s.client.Stats()
	if err != nil {
		return outputError("scan", err)
	}
	result.Docs = stats.Docs
	result.Files = stats.Files
	result.References = stats.References
	fmt.Fprintf(os.Stderr, "Scanned %s: %d docs, %d files, %d references, %d not found\n",
		root, stats.Docs, stats.Files, stats.References, st.NotFound)
	return outputResult(CLIResult{Command: "scan", Results: result})
}

func runRefs(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(nil)
	if err != nil {
		return outputError("refs", err)
	}
	file, err := relFile(root, args[0])
	if err != nil {
		return outputError("refs", err)
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return outputError("refs", err)
	}
	s, err := openReady(root)
	if err != nil {
		return outputError("refs", err)
	}
	defer s.Close()

	q := s.engine.Query()
	refs := q.ReferencesEnclosing(file, line)
	out := make([]CLIReference, 0, len(refs))
	for _, r := range refs {
		lines, err := q.Lines(file, r)
		if err != nil {
			return outputError("refs", err)
		}
		c := referenceToCLI(r, lines, q.Targets([]doclink.Reference{r}))
		if flagPreview {
			body, err := q.Preview(context.Background(), r)
			if err != nil {
				body = err.Error()
			}
			c.Preview = &body
		}
		out = append(out, c)
	}
	return outputResult(CLIResult{Command: "refs", Results: out})
}

func runGutter(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(nil)
	if err != nil {
		return outputError("gutter", err)
	}
	file, err := relFile(root, args[0])
	if err != nil {
		return outputError("gutter", err)
	}
	s, err := openReady(root)
	if err != nil {
		return outputError("gutter", err)
	}
	defer s.Close()

	marks := s.engine.Query().GutterMarks(file)
	out := make([]CLIGutterMark, 0, len(marks))
	for _, m := range marks {
		out = append(out, gutterMarkToCLI(m))
	}
	return outputResult(CLIResult{Command: "gutter", Results: out})
}

func runNotFound(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(nil)
	if err != nil {
		return outputError("notfound", err)
	}
	s, err := openReady(root)
	if err != nil {
		return outputError("notfound", err)
	}
	defer s.Close()

	nf := s.engine.Query().NotFound()
	out := make([]CLINotFound, 0, len(nf))
	for _, n := range nf {
		out = append(out, notFoundToCLI(n))
	}
	return outputResult(CLIResult{Command: "notfound", Results: out})
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
