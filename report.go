package main

import (
	"context"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// TransferOutcome records what happened to one listed remote entry.
type TransferOutcome struct {
	Name            string `yaml:"name"`
	Size            int64  `yaml:"size"`
	Succeeded       bool   `yaml:"succeeded"`
	Verified        bool   `yaml:"verified"`
	Skipped         bool   `yaml:"skipped,omitempty"`
	DeleteAttempted bool   `yaml:"delete_attempted,omitempty"`
	RemoteDeleted   bool   `yaml:"remote_deleted,omitempty"`
	// Err holds the transfer failure, or the deletion failure of a
	// successful transfer.
	Err error `yaml:"-"`
}

func (o TransferOutcome) MarshalYAML() (interface{}, error) {
	type plain TransferOutcome
	doc := struct {
		plain `yaml:",inline"`
		Error string `yaml:"error,omitempty"`
	}{plain: plain(o)}
	if o.Err != nil {
		doc.Error = o.Err.Error()
	}
	return doc, nil
}

// RunReport aggregates the outcomes of one run.
type RunReport struct {
	RunID            string            `yaml:"run_id"`
	Total            int               `yaml:"total"`
	Succeeded        int               `yaml:"succeeded"`
	Failed           int               `yaml:"failed"`
	Skipped          int               `yaml:"skipped"`
	DeletionFailures int               `yaml:"deletion_failures"`
	Outcomes         []TransferOutcome `yaml:"files"`
}

func (r *RunReport) record(o TransferOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Total++
	switch {
	case o.Skipped:
		r.Skipped++
	case o.Succeeded:
		r.Succeeded++
	default:
		r.Failed++
	}
	if o.DeleteAttempted && !o.RemoteDeleted {
		r.DeletionFailures++
	}
}

// FailedFiles returns the names of the entries whose transfer failed.
func (r *RunReport) FailedFiles() []string {
	var names []string
	for _, o := range r.Outcomes {
		if !o.Skipped && !o.Succeeded {
			names = append(names, o.Name)
		}
	}
	return names
}

func (r *RunReport) emit(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	for i, o := range r.Outcomes {
		logger.Debug().
			Str("file", o.Name).
			Bool("succeeded", o.Succeeded).
			Bool("verified", o.Verified).
			Bool("skipped", o.Skipped).
			Bool("remote_deleted", o.RemoteDeleted).
			AnErr("error", o.Err).
			Msgf("Outcome [%d/%d]", i+1, len(r.Outcomes))
	}

	if failed := r.FailedFiles(); len(failed) > 0 {
		logger.Error().Strs("files", failed).Msg("Some files failed to transfer")
	}

	logger.Info().
		Int("total", r.Total).
		Int("succeeded", r.Succeeded).
		Int("failed", r.Failed).
		Int("skipped", r.Skipped).
		Int("deletion_failures", r.DeletionFailures).
		Msg("Run complete")
}

// saveReport writes the report as YAML next to filename and renames it into place.
func saveReport(local billy.Filesystem, filename string, r *RunReport) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Errorf("marshal report: %w", err)
	}

	tmp := filename + ".tmp"
	f, err := local.Create(tmp)
	if err != nil {
		return errors.Errorf("create report: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("close report: %w", err)
	}
	if err := local.Rename(tmp, filename); err != nil {
		return errors.Errorf("rename report: %w", err)
	}
	return nil
}
