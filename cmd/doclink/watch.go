package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/doclink"
	"github.com/jward/doclink/internal/config"
	"github.com/jward/doclink/internal/lsp"
	"github.com/jward/doclink/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rescan a project whenever its files change",
	Long:  "Scans the project, then watches it and rescans after each burst of writes. Scan results and not-found references are reported on stderr until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runLSP,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if errors.Is(err, config.ErrNoConfig) {
		cfg = config.Default(root)
	} else if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(root, doclink.WithListener(watchListener(os.Stderr)))
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := watch.New(cfg, func(paths []string) {
		fmt.Fprintf(os.Stderr, "Changed: %s\n", strings.Join(paths, ", "))
		s.engine.Refresh(root)
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", root)

	<-ctx.Done()
	return w.Stop()
}

// watchListener reports refresh outcomes on w.
func watchListener(w io.Writer) doclink.Listener {
	return doclink.ListenerFuncs{
		OnRefreshSucceeded: func() {
			fmt.Fprintln(w, "Scan applied")
		},
		OnRefreshFailed: func(errs []doclink.ReportedError) {
			fmt.Fprintf(w, "Error: %s\n", scanFailure(errs))
		},
		OnNotFoundUpdated: func(nf []doclink.NotFound) {
			if len(nf) == 0 {
				return
			}
			fmt.Fprintf(w, "%d reference(s) not found:\n", len(nf))
			for _, n := range nf {
				fmt.Fprintf(w, "  %s: %s\n", notFoundToCLI(n).Target(), n.Reason)
			}
		},
	}
}

func runLSP(cmd *cobra.Command, args []string) error {
	client, err := doclink.NewLocalClient()
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}
	defer client.Close()
	return lsp.New(client).RunStdio()
}
