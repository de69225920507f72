package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatScanText formats a CLIScan as readable text.
func formatScanText(w io.Writer, s CLIScan) {
	fmt.Fprintf(w, "Root: %s\n", s.Root)
	fmt.Fprintf(w, "State: %s (generation %d)\n", s.State, s.Generation)
	fmt.Fprintf(w, "Docs: %d\n", s.Docs)
	fmt.Fprintf(w, "Files: %d\n", s.Files)
	fmt.Fprintf(w, "References: %d\n", s.References)
	fmt.Fprintf(w, "Not found: %d\n", s.NotFound)
	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
			for _, loc := range e.Locations {
				fmt.Fprintf(w, "    %s:%d\n", loc.File, loc.Line)
			}
		}
	}
}

// formatReferencesText formats ranked references, one block per reference
// with its documentation targets underneath.
func formatReferencesText(w io.Writer, refs []CLIReference) {
	for i, r := range refs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		directive := r.Directive
		if directive == "" {
			directive = "-"
		}
		fmt.Fprintf(w, "%s  %s %s  lines %d-%d  [%s]\n",
			r.ID, r.Kind, r.Selector, r.StartLine, r.EndLine, directive)
		for _, t := range r.Targets {
			marker := " "
			if t.Primary {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %s:%d\n", marker, t.File, t.Line)
		}
		if r.Preview != nil {
			for _, line := range strings.Split(*r.Preview, "\n") {
				fmt.Fprintf(w, "    | %s\n", line)
			}
		}
	}
}

// formatGutterText formats CLIGutterMark results as aligned columns.
func formatGutterText(w io.Writer, marks []CLIGutterMark) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tMARK\tCLASS\tDIRECTIVE\tREF")
	for _, m := range marks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.Line, m.Letter, m.Class, m.Directive, m.RefID)
	}
	tw.Flush()
}

// formatNotFoundText formats CLINotFound results as aligned columns, one
// row per documentation location.
func formatNotFoundText(w io.Writer, nf []CLINotFound) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOC\tTARGET\tREASON")
	for _, n := range nf {
		target := n.Target()
		if len(n.Locations) == 0 {
			fmt.Fprintf(tw, "-\t%s\t%s\n", target, n.Reason)
			continue
		}
		for _, loc := range n.Locations {
			fmt.Fprintf(tw, "%s:%d\t%s\t%s\n", loc.File, loc.Line, target, n.Reason)
		}
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case CLIScan:
		formatScanText(w, v)
	case []CLIReference:
		formatReferencesText(w, v)
	case []CLIGutterMark:
		formatGutterText(w, v)
	case []CLINotFound:
		formatNotFoundText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
