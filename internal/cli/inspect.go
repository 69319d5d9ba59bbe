package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	ProgramSource
	Export string
}

// ChannelSummary describes one stored channel.
type ChannelSummary struct {
	Channel      string `json:"channel"`
	Deltas       int    `json:"deltas"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
	SnapshotSize int    `json:"snapshot_deltas,omitempty"`
}

// ProgramSummary describes one loaded program.
type ProgramSummary struct {
	Deltas    int               `json:"deltas"`
	Version   ir.Version        `json:"version"`
	StateHash string            `json:"state_hash"`
	Nodes     []ir.NodeView     `json:"nodes"`
	Variables []ir.VariableView `json:"variables"`
	Cycles    [][]ir.NodeID     `json:"cycles,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show stored channels or one program's state",
		Long: `Inspect relay storage and program state.

With --db and no --channel, lists every stored channel. With a channel
(or --state / --remote), prints the program's nodes, variables, version
vector and state hash. --export writes the program as a state file that
compile --state reads.

Examples:
  geckode inspect --db geckode.db
  geckode inspect --db geckode.db --channel level-1
  geckode inspect --remote --channel level-1 --export level-1.state`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StateFile, "state", "", "exported state file")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "relay database")
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "fetch the channel from the configured relay")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "channel id")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the program's state to this file")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.DBPath != "" && opts.Channel == "" && opts.StateFile == "" && !opts.Remote {
		return listChannels(cmd.Context(), f, opts.DBPath)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	g, err := loadProgram(cmd.Context(), opts.ProgramSource, cfg, cfg.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	if opts.Export != "" {
		data, err := g.ExportState()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to export state", err)
		}
		if err := os.WriteFile(opts.Export, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write state file", err)
		}
		f.VerboseLog("wrote %s", opts.Export)
	}

	summary, err := summarize(g)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash state", err)
	}
	if f.JSON() {
		return f.Success(summary)
	}
	printProgram(f, summary)
	return nil
}

func listChannels(ctx context.Context, f *OutputFormatter, path string) error {
	if _, err := os.Stat(path); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", path), nil)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ids, err := st.Channels(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list channels", err)
	}
	out := make([]ChannelSummary, 0, len(ids))
	for _, id := range ids {
		n, err := st.CountDeltas(ctx, id)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count deltas", err)
		}
		cs := ChannelSummary{Channel: id, Deltas: n}
		if snap, ok, err := st.LoadSnapshot(ctx, id); err != nil {
			return WrapExitError(ExitFailure, "failed to read snapshot", err)
		} else if ok {
			cs.SnapshotHash = snap.Hash
			cs.SnapshotSize = snap.Deltas
		}
		out = append(out, cs)
	}

	if f.JSON() {
		return f.Success(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(f.Writer, "No channels stored.")
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tDELTAS\tSNAPSHOT")
	for _, cs := range out {
		snap := "-"
		if cs.SnapshotHash != "" {
			snap = fmt.Sprintf("%s (%d deltas)", shortHash(cs.SnapshotHash), cs.SnapshotSize)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", cs.Channel, cs.Deltas, snap)
	}
	return tw.Flush()
}

func summarize(g *graph.Graph) (ProgramSummary, error) {
	hash, err := g.StateHash()
	if err != nil {
		return ProgramSummary{}, err
	}
	snap := g.Snapshot()
	return ProgramSummary{
		Deltas:    g.Len(),
		Version:   snap.Version(),
		StateHash: hash,
		Nodes:     snap.Nodes(),
		Variables: snap.Variables(),
		Cycles:    snap.Cycles(),
	}, nil
}

func printProgram(f *OutputFormatter, s ProgramSummary) {
	w := f.Writer
	fmt.Fprintf(w, "State:   %s (%d deltas)\n", s.StateHash, s.Deltas)

	actors := make([]ir.ActorID, 0, len(s.Version))
	for a := range s.Version {
		actors = append(actors, a)
	}
	slices.Sort(actors)
	fmt.Fprint(w, "Version:")
	for _, a := range actors {
		fmt.Fprintf(w, " %s=%d", a, s.Version[a])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\nNodes (%d):\n", len(s.Nodes))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range s.Nodes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", n.ID, n.Kind, position(n))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nVariables (%d):\n", len(s.Variables))
	for _, v := range s.Variables {
		fmt.Fprintf(w, "  %s\t%s\n", v.ID, v.Name)
	}

	for _, c := range s.Cycles {
		fmt.Fprintf(w, "\n⚠ cycle: %v\n", c)
	}
}

func position(n ir.NodeView) string {
	switch {
	case n.Parent == nil:
		return "root"
	case n.Parent.Next:
		return "after " + string(n.Parent.ID)
	default:
		return fmt.Sprintf("in %s.%s", n.Parent.ID, n.Parent.Slot)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
