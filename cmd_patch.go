package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// =============================================================================
// RUN COMMAND
// =============================================================================

// runScript evaluates a script file and prints the resulting patch. With
// --output the patch is saved as well.
func (c *cli) runScript(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "read script")
	}
	res := c.app.Evaluate(string(src))
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			if e.Line > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: %s\n", args[0], e.Line, e.Message)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", args[0], e.Message)
			}
		}
		return errors.Errorf("%s: %d error(s)", args[0], len(res.Errors))
	}
	printSnapshot(cmd.OutOrStdout(), res.Snapshot)

	if c.outPath != "" {
		if err := c.app.Save(c.outPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", c.outPath)
	}
	return nil
}

// =============================================================================
// INSPECT COMMAND
// =============================================================================

// inspectFile loads a patch and prints it. With --watch it keeps running and
// reprints after every change to the file until the command is interrupted.
func (c *cli) inspectFile(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := c.loadAndPrint(cmd.OutOrStdout(), path); err != nil {
		return err
	}
	if !c.watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	// Saves land through a rename, so watch the directory rather than the file.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(err, "watch")
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPatchChange(event, abs) {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--- %s changed\n", path)
			if err := c.loadAndPrint(cmd.OutOrStdout(), path); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.app.log.Warn("file watcher error", "error", err)
		}
	}
}

// isPatchChange reports whether event rewrote the file at abs.
func isPatchChange(event fsnotify.Event, abs string) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != abs {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (c *cli) loadAndPrint(w io.Writer, path string) error {
	rep, err := c.app.Load(path)
	if err != nil {
		return err
	}
	printSnapshot(w, c.app.Snapshot())
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "skipped edge %s on object %s: %s\n", s.Handler, s.Object, s.Reason)
	}
	for _, f := range c.app.Validate() {
		fmt.Fprintln(w, f)
	}
	return nil
}

// =============================================================================
// CONVERT COMMAND
// =============================================================================

// convertFile loads in and saves it to out. Compression follows the output
// suffix unless the configuration forces it.
func (c *cli) convertFile(cmd *cobra.Command, args []string) error {
	rep, err := c.app.Load(args[0])
	if err != nil {
		return err
	}
	if err := c.app.Save(args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "converted %s -> %s (%d nodes, %d edges, %d skipped)\n",
		args[0], args[1], rep.Nodes, rep.Edges, len(rep.Skipped))
	return nil
}

// =============================================================================
// TICK COMMAND
// =============================================================================

// tickFile loads a patch, emits --count pulses from every pulse node and
// prints what each show-number node displays.
func (c *cli) tickFile(cmd *cobra.Command, args []string) error {
	if c.tickCount < 0 {
		return errors.Errorf("count must not be negative, got %d", c.tickCount)
	}
	if _, err := c.app.Load(args[0]); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tLABEL\tREADING")
	for _, r := range c.app.Tick(c.tickCount) {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Node, r.Label, r.Text)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if c.showMetrics {
		m := c.app.Metrics()
		if m == nil {
			return errors.New("metrics are disabled in the configuration")
		}
		families, err := m.GetPrometheusRegistry().Gather()
		if err != nil {
			return errors.Wrap(err, "gather metrics")
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				return errors.Wrap(err, "write metrics")
			}
		}
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func printSnapshot(w io.Writer, s Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tLABEL\tPOS\tSOCKETS")
	for _, n := range s.Nodes {
		socks := make([]string, 0, len(n.Sockets))
		for _, so := range n.Sockets {
			mark := ""
			if so.Connected {
				mark = "*"
			}
			socks = append(socks, fmt.Sprintf("%s:%s%s", so.Name, so.Mode, mark))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d,%d\t%s\n", n.ID, n.Type, n.Label, n.X, n.Y, strings.Join(socks, " "))
	}
	tw.Flush()

	for _, conn := range s.Connections {
		fmt.Fprintf(w, "%d.%s -> %d.%s\n", conn.SourceNode, conn.SourceSocket, conn.SinkNode, conn.SinkSocket)
	}
}
