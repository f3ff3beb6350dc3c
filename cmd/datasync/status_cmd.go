package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/config"
	"github.com/fomcagent/datasync/internal/state"
	"github.com/spf13/cobra"
)

// sourceStatus is what the destination says about one source
type sourceStatus struct {
	SourceID    string                 `json:"source_id"`
	Kind        string                 `json:"kind"`
	LastSync    *time.Time             `json:"last_sync,omitempty"`
	Files       int                    `json:"files,omitempty"`
	Objects     int                    `json:"objects"`
	Bytes       int64                  `json:"bytes"`
	ContentHash string                 `json:"content_hash,omitempty"`
	RecordCount int                    `json:"record_count,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
	Log         []state.ChangeLogEntry `json:"log,omitempty"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [SOURCE_ID...]",
		Short: "Show the recorded state and recent changes of each source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			store, err := blob.Open(cmd.Context(), &cfg.Destination)
			if err != nil {
				return err
			}
			defer store.Close()

			tail, _ := cmd.Flags().GetInt("tail")
			statuses, err := collectStatus(cmd.Context(), cfg, store, args, tail)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			return printStatus(cmd.OutOrStdout(), statuses, asJSON)
		},
	}

	cmd.Flags().Int("tail", 5, "Number of change log entries to show per source")
	cmd.Flags().Bool("json", false, "Print status as JSON")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, store blob.Store, ids []string, tail int) ([]sourceStatus, error) {
	states := state.NewStore(store)
	wanted := func(id string) bool {
		if len(ids) == 0 {
			return true
		}
		for _, want := range ids {
			if want == id {
				return true
			}
		}
		return false
	}

	seen := map[string]bool{}
	var out []sourceStatus

	for _, src := range cfg.Sources() {
		if !wanted(src.ID) {
			continue
		}
		seen[src.ID] = true

		st := sourceStatus{SourceID: src.ID, Kind: "directory"}
		snapshot, err := states.LoadSource(ctx, src.ID)
		if err != nil {
			st.Warning = err.Error()
		}
		if snapshot != nil {
			st.Files = len(snapshot.Files)
			if !snapshot.LastSync.IsZero() {
				st.LastSync = &snapshot.LastSync
			}
		}

		objects, err := store.List(ctx, strings.TrimSuffix(src.Prefix, "/")+"/")
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", src.Prefix, err)
		}
		for _, obj := range objects {
			st.Objects++
			st.Bytes += obj.Size
		}

		if st.Log, err = states.ReadLog(ctx, src.ID, tail); err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	type object struct{ id, kind, key string }
	var objects []object
	for _, src := range cfg.ResourceSources() {
		objects = append(objects, object{src.ID, "resource", src.Key})
	}
	for _, src := range cfg.TimeseriesSources() {
		objects = append(objects, object{src.ID, "timeseries", src.Key})
	}

	for _, obj := range objects {
		if !wanted(obj.id) {
			continue
		}
		seen[obj.id] = true

		st := sourceStatus{SourceID: obj.id, Kind: obj.kind}
		snapshot, err := states.LoadResource(ctx, obj.id)
		if err != nil {
			st.Warning = err.Error()
		}
		if snapshot != nil {
			st.ContentHash = snapshot.ContentHash
			st.RecordCount = snapshot.RecordCount
			if !snapshot.LastSync.IsZero() {
				st.LastSync = &snapshot.LastSync
			}
		}

		info, err := store.Head(ctx, obj.key)
		if err == nil {
			st.Objects = 1
			st.Bytes = info.Size
		}

		if st.Log, err = states.ReadLog(ctx, obj.id, tail); err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	for _, id := range ids {
		if !seen[id] {
			return nil, fmt.Errorf("no source with id %q", id)
		}
	}
	return out, nil
}

func printStatus(w io.Writer, statuses []sourceStatus, asJSON bool) error {
	if asJSON {
		if statuses == nil {
			statuses = []sourceStatus{}
		}
		data, err := codec.MarshalIndent(statuses)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(statuses) == 0 {
		fmt.Fprintln(w, gray.Render("no sources configured"))
		return nil
	}

	for _, st := range statuses {
		lastSync := gray.Render("never synced")
		if st.LastSync != nil {
			lastSync = "synced " + humanize.Time(*st.LastSync)
		}
		fmt.Fprintf(w, "%s %s %s\n", bold.Render(st.SourceID), gray.Render("("+st.Kind+")"), lastSync)

		switch st.Kind {
		case "directory":
			fmt.Fprintf(w, "  files: %d  objects: %d  size: %s\n", st.Files, st.Objects, humanize.Bytes(uint64(st.Bytes)))
		case "resource", "timeseries":
			fmt.Fprintf(w, "  fingerprint: %s  records: %d  size: %s\n", orDash(st.ContentHash), st.RecordCount, humanize.Bytes(uint64(st.Bytes)))
		}
		if st.Warning != "" {
			fmt.Fprintf(w, "  %s %s\n", red.Render("warning:"), st.Warning)
		}
		for _, entry := range st.Log {
			fmt.Fprintf(w, "  %s %-9s %s\n",
				gray.Render(entry.Timestamp.Format(time.RFC3339)),
				actionStyle(entry.Action).Render(string(entry.Action)),
				entry.Item)
		}
	}
	return nil
}

func actionStyle(a state.Action) lipgloss.Style {
	switch a {
	case state.ActionAdded, state.ActionUpdated:
		return green
	case state.ActionDeleted:
		return cyan
	case state.ActionFailed:
		return red
	default:
		return gray
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
