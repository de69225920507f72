package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/jward/doclink"
	"github.com/jward/doclink/internal/config"
	"github.com/jward/doclink/internal/scan"
)

var (
	flagRoot      string
	flagFormat    string
	flagVerbosity int
	flagLogFile   string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "doclink",
	Short:         "Cross-link source code with its markdown documentation",
	Long:          "Doclink scans markdown files for code: links, resolves them against the source tree and answers which documentation describes a given line.",
	Version:       doclink.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		configureLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (default: nearest directory with "+config.FileName+" or .git)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "log verbosity (repeat for more)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(gutterCmd)
	rootCmd.AddCommand(notFoundCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(lspCmd)
}

// configureLogging routes commonlog output. Without -v only errors are
// logged, so stdout stays clean for results.
func configureLogging() {
	var path *string
	if flagLogFile != "" {
		path = &flagLogFile
	}
	commonlog.Configure(flagVerbosity, path)
}

// resolveRoot returns the absolute project root from --root, args, or the
// working directory.
func resolveRoot(args []string) (string, error) {
	dir := flagRoot
	if dir == "" && len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting cwd: %w", err)
		}
		return findProjectRoot(cwd), nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for a settings file, then
// for a .git directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	if dir, ok := walkUp(startDir, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, config.FileName))
		return err == nil && !info.IsDir()
	}); ok {
		return dir
	}
	if dir, ok := walkUp(startDir, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, ".git"))
		return err == nil && info.IsDir()
	}); ok {
		return dir
	}
	return startDir
}

func walkUp(dir string, match func(string) bool) (string, bool) {
	for {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// relFile converts a file argument to the project-relative slash path the
// index is keyed by.
func relFile(root, file string) (string, error) {
	abs := file
	if !filepath.IsAbs(abs) {
		var err error
		if abs, err = filepath.Abs(file); err != nil {
			return "", fmt.Errorf("resolving file path %q: %w", file, err)
		}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the project root %s", file, root)
	}
	return filepath.ToSlash(rel), nil
}

// session is one scanned project.
type session struct {
	root   string
	client *scan.Local
	engine *doclink.Engine
}

// openSession scans root and returns once the scan has landed, failed or
// not.
func openSession(root string, opts ...doclink.Option) (*session, error) {
	client, err := doclink.NewLocalClient()
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}
	s := &session{root: root, client: client, engine: doclink.New(client, opts...)}
	s.engine.Refresh(root)
	s.engine.Wait()
	return s, nil
}

// openReady is openSession for commands that need a usable index.
func openReady(root string) (*session, error) {
	s, err := openSession(root)
	if err != nil {
		return nil, err
	}
	if st := s.engine.Status(); st.State == doclink.Failed {
		s.Close()
		return nil, scanFailure(st.Errors)
	}
	return s, nil
}

func (s *session) Close() {
	s.engine.Close()
	s.client.Close()
}

func scanFailure(errs []doclink.ReportedError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		return errors.New("scan failed")
	}
	return fmt.Errorf("scan failed: %s", strings.Join(msgs, "; "))
}
