package cli

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/cli/config"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/usecase"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

func cmdSync() *cli.Command {
	var categoryID int
	var maxCategories int
	var maxUsersPerCourse int
	var dispatch bool
	var sourceCfg config.Source
	var repoCfg config.Repository
	var syncCfg config.Sync
	var sinkCfg config.Sink
	var policyCfg config.Policy

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "category-id",
			Usage:       "Sync a single category instead of discovering all",
			Sources:     cli.EnvVars("ENROLSYNC_CATEGORY_ID", "KVCA_SYNC_DEFAULT_CATEGORY_ID"),
			Destination: &categoryID,
		},
		&cli.IntFlag{
			Name:        "max-categories",
			Usage:       "Cap on discovered categories (0 = unlimited)",
			Sources:     cli.EnvVars("ENROLSYNC_MAX_CATEGORIES"),
			Destination: &maxCategories,
		},
		&cli.IntFlag{
			Name:        "max-users-per-course",
			Usage:       "Cap on status rows per course (0 = unlimited)",
			Sources:     cli.EnvVars("ENROLSYNC_MAX_USERS_PER_COURSE", "KVCA_MAX_USERS_PER_COURSE"),
			Destination: &maxUsersPerCourse,
		},
		&cli.BoolFlag{
			Name:        "dispatch",
			Usage:       "Drain both outboxes after the sync pass",
			Value:       true,
			Sources:     cli.EnvVars("ENROLSYNC_SYNC_DISPATCH"),
			Destination: &dispatch,
		},
	}
	flags = append(flags, sourceCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)
	flags = append(flags, sinkCfg.Flags()...)
	flags = append(flags, policyCfg.Flags()...)

	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			source, err := sourceCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure source client")
			}

			ucConfig := syncCfg.Configure()
			ucConfig.NotifyTemplate = sinkCfg.Template()
			ucConfig.NotifyRecipient = sinkCfg.Recipient()
			if err := policyCfg.Apply(&ucConfig); err != nil {
				return err
			}

			sheetSink, notifier := sinkCfg.Configure()
			uc := usecase.New(repo, source,
				usecase.WithConfig(ucConfig),
				usecase.WithSheetSink(sheetSink),
				usecase.WithNotifier(notifier),
			)

			input := usecase.SyncInput{
				MaxCategories:     maxCategories,
				MaxUsersPerCourse: maxUsersPerCourse,
				Trigger:           types.TriggerTypeManual,
			}
			if c.IsSet("category-id") {
				input.CategoryID = &categoryID
			}

			summary, err := uc.Sync.Run(ctx, input)
			if err != nil {
				if errors.Is(err, usecase.ErrLockConflict) {
					logging.Default().Warn("sync skipped: another instance holds the job lock")
					return err
				}
				return err
			}

			logging.Default().Info("sync completed",
				"categories", summary.CategoriesProcessed,
				"courses", summary.CoursesProcessed,
				"status_rows", summary.StatusRowsProcessed,
				"details", summary.DetailsProcessed,
				"upserted", summary.SourceRecordsUpserts,
				"new", summary.NewRecords,
				"changed", summary.ChangedRecords,
				"alerts", summary.CreatedAlerts,
			)

			if dispatch {
				results, err := uc.Outbox.DispatchAll(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to dispatch outboxes")
				}
				for table, result := range results {
					logging.Default().Info("outbox pass completed",
						"table", table,
						"picked", result.Picked,
						"sent", result.Sent,
						"failed", result.Failed,
						"skipped", result.Skipped,
					)
				}
			}

			return nil
		},
	}
}
