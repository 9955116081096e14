package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/migration"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var ErrUnknownOutput = errors.New("unknown output format, supported formats are text, json and yaml")

type reportView struct {
	Direction  string          `json:"direction" yaml:"direction"`
	Migrations []migrationView `json:"migrations" yaml:"migrations"`
}

type migrationView struct {
	ID      string  `json:"id" yaml:"id"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
}

type statusView struct {
	Applied    uint        `json:"applied" yaml:"applied"`
	Pending    uint        `json:"pending" yaml:"pending"`
	Missing    uint        `json:"missing" yaml:"missing"`
	Migrations []stateView `json:"migrations" yaml:"migrations"`
}

type stateView struct {
	ID          string     `json:"id" yaml:"id"`
	Status      string     `json:"status" yaml:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

func checkOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
}

func writeReport(w io.Writer, format string, direction migration.Direction, report migration.Report) error {
	view := reportView{
		Direction:  direction.String(),
		Migrations: make([]migrationView, len(report)),
	}
	for i, info := range report {
		view.Migrations[i] = migrationView{ID: info.ID, Seconds: info.Duration.Seconds()}
	}

	if format != outputText {
		return encode(w, format, view)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, info := range report {
		fmt.Fprintf(tw, "%s\t%s\t%s sec\n", direction, info.ID, info.Seconds())
	}
	return tw.Flush()
}

func writeStatus(w io.Writer, format string, status *henka.StatusResult) error {
	view := statusView{
		Applied:    status.AppliedCount,
		Pending:    status.PendingCount,
		Missing:    status.MissingCount,
		Migrations: make([]stateView, len(status.Migrations)),
	}
	for i, state := range status.Migrations {
		view.Migrations[i] = stateView{ID: state.ID, Status: state.Status.String()}
		if !state.CompletedAt.IsZero() {
			completedAt := state.CompletedAt
			view.Migrations[i].CompletedAt = &completedAt
		}
	}

	if format != outputText {
		return encode(w, format, view)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCOMPLETED AT")
	for _, state := range view.Migrations {
		completedAt := "-"
		if state.CompletedAt != nil {
			completedAt = state.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", state.ID, state.Status, completedAt)
	}
	fmt.Fprintf(tw, "\n%d applied, %d pending, %d missing\n", view.Applied, view.Pending, view.Missing)
	return tw.Flush()
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
}
