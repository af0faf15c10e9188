package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/htpdf/htpdf/internal/bootstrap"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/model"
)

const commandTimeout = 2 * time.Minute

func runMigrateCommand(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

type submitJobOptions struct {
	OwnerID     string
	OwnerEmail  string
	HTMLFile    string
	Filename    string
	Orientation string
	PaperSize   string
}

func parseSubmitJobFlags(args []string) (*submitJobOptions, error) {
	fs := flag.NewFlagSet("submit-job", flag.ContinueOnError)
	opts := &submitJobOptions{}
	fs.StringVar(&opts.OwnerID, "owner", "", "owner id the job belongs to")
	fs.StringVar(&opts.OwnerEmail, "email", "", "email address notified when the job finishes")
	fs.StringVar(&opts.HTMLFile, "file", "", "path to the HTML file to render")
	fs.StringVar(&opts.Filename, "filename", "document.pdf", "requested output filename")
	fs.StringVar(&opts.Orientation, "orientation", string(model.OrientationPortrait), "page orientation (portrait or landscape)")
	fs.StringVar(&opts.PaperSize, "paper", string(model.PaperSizeA4), "paper size (a4, a3, letter, legal)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.OwnerID == "" || opts.OwnerEmail == "" || opts.HTMLFile == "" {
		return nil, errors.New("-owner, -email and -file are required")
	}
	return opts, nil
}

func runSubmitJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseSubmitJobFlags(args)
	if err != nil {
		return err
	}

	html, err := os.ReadFile(opts.HTMLFile)
	if err != nil {
		return fmt.Errorf("read html file: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	job, err := jobs.Submit(ctx, &model.CreateJobRequest{
		OwnerID:     opts.OwnerID,
		OwnerEmail:  opts.OwnerEmail,
		HTMLContent: string(html),
		Orientation: model.Orientation(opts.Orientation),
		PaperSize:   model.PaperSize(opts.PaperSize),
		Filename:    opts.Filename,
	})
	if err != nil {
		return err
	}

	return writef(os.Stdout, "submitted job %s (status %s)\n", job.ID, job.Status)
}

type listJobsOptions struct {
	OwnerID string
	Status  string
	Limit   int
	Offset  int
}

func parseListJobsFlags(args []string) (*listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	opts := &listJobsOptions{}
	fs.StringVar(&opts.OwnerID, "owner", "", "owner id to list jobs for")
	fs.StringVar(&opts.Status, "status", "", "only list jobs in this state (pending, processing, completed, failed, cancelled)")
	fs.IntVar(&opts.Limit, "limit", 0, "page size (default 20, max 100)")
	fs.IntVar(&opts.Offset, "offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.OwnerID == "" {
		return nil, errors.New("-owner is required")
	}
	return opts, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	summaries, total, err := jobs.ListForOwner(ctx, core.ListJobsParams{
		OwnerID: opts.OwnerID,
		Status:  model.JobStatus(opts.Status),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return err
	}

	return printJobList(summaries, total)
}

func printJobList(summaries []model.JobSummary, total int) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	if err := writef(tw, "ID\tSTATUS\tFILENAME\tCREATED\tEXPIRES\tDOWNLOADABLE\n"); err != nil {
		return err
	}
	for _, s := range summaries {
		expires := "-"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format(time.RFC3339)
			if s.IsExpired {
				expires += " (expired)"
			}
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			s.ID, s.Status, s.Filename, s.CreatedAt.Format(time.RFC3339), expires, s.CanDownload); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	return writef(os.Stdout, "showing %d of %d jobs\n", len(summaries), total)
}

type jobRefOptions struct {
	ID      string
	OwnerID string
}

func parseJobRefFlags(name string, args []string) (*jobRefOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &jobRefOptions{}
	fs.StringVar(&opts.ID, "id", "", "job id")
	fs.StringVar(&opts.OwnerID, "owner", "", "owner id the job belongs to")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.ID == "" || opts.OwnerID == "" {
		return nil, errors.New("-id and -owner are required")
	}
	return opts, nil
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobRefFlags("job-status", args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	status, err := jobs.GetStatus(ctx, opts.ID, opts.OwnerID)
	if err != nil {
		return err
	}

	return printJobStatus(opts.ID, status)
}

func printJobStatus(id string, status *model.JobStatusResponse) error {
	if err := writef(os.Stdout, "Job:    %s\n", id); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Status: %s\n", status.Status); err != nil {
		return err
	}
	if status.CompletedAt != nil {
		if err := writef(os.Stdout, "Completed at: %s\n", status.CompletedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if status.ErrorMessage != nil {
		if err := writef(os.Stdout, "Error: %s\n", *status.ErrorMessage); err != nil {
			return err
		}
	}
	return nil
}

func runCancelJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobRefFlags("cancel-job", args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	cancelled, err := jobs.Cancel(ctx, opts.ID, opts.OwnerID)
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("job %s was not pending for owner %s", opts.ID, opts.OwnerID)
	}

	return writef(os.Stdout, "cancelled job %s\n", opts.ID)
}

func runDownloadPDF(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("download-pdf", flag.ContinueOnError)
	id := fs.String("id", "", "job id")
	owner := fs.String("owner", "", "owner id the job belongs to")
	out := fs.String("out", "", "output path (defaults to the job's filename)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *owner == "" {
		return errors.New("-id and -owner are required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	content, filename, err := jobs.Download(ctx, *id, *owner)
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = filename
	}
	if err := os.WriteFile(target, content, 0o640); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	return writef(os.Stdout, "wrote %d bytes to %s\n", len(content), target)
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(db, cmdCtx.Logger)

	jobs, err := buildJobService(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}

	jobStats, err := jobs.Stats(ctx)
	if err != nil {
		return err
	}
	outboxStats, err := data.NewOutboxRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).Stats(ctx)
	if err != nil {
		return err
	}

	return printStats(jobStats, outboxStats)
}

func printStats(jobStats *model.JobStats, outboxStats *model.OutboxStats) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	rows := []struct {
		section string
		state   string
		count   int
	}{
		{"jobs", "pending", jobStats.Pending},
		{"jobs", "processing", jobStats.Processing},
		{"jobs", "completed", jobStats.Completed},
		{"jobs", "failed", jobStats.Failed},
		{"jobs", "cancelled", jobStats.Cancelled},
		{"outbox", "pending", outboxStats.Pending},
		{"outbox", "completed", outboxStats.Completed},
		{"outbox", "permanently_failed", outboxStats.PermanentlyFailed},
	}

	if err := writef(tw, "SECTION\tSTATE\tCOUNT\n"); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%s\t%d\n", row.section, row.state, row.count); err != nil {
			return err
		}
	}
	return tw.Flush()
}
