package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/relwatch/pkg/cli/config"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/infra/cache"
	"github.com/m-mizutani/relwatch/pkg/infra/slack"
	"github.com/m-mizutani/relwatch/pkg/usecase"
)

func cmdFetch() *cli.Command {
	var (
		githubCfg    config.GitHub
		reposCfg     config.Repositories
		dashboardCfg config.Dashboard
		storageCfg   config.Storage
		slackCfg     config.Slack
		jsonOutput   bool
		refresh      bool
	)

	var flags []cli.Flag
	flags = append(flags, githubCfg.Flags()...)
	flags = append(flags, reposCfg.Flags()...)
	flags = append(flags, dashboardCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print results as JSON",
			Destination: &jsonOutput,
		},
		&cli.BoolFlag{
			Name:        "refresh",
			Usage:       "Ignore persisted results and fetch every repository",
			Value:       true,
			Destination: &refresh,
		},
	)

	return &cli.Command{
		Name:    "fetch",
		Aliases: []string{"f"},
		Usage:   "Fetch release deltas once with the server credential and print them",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := dashboardCfg.Validate(); err != nil {
				return err
			}
			if !githubCfg.HasServerCredential() {
				return goerr.New("--github-token or a GitHub App is required")
			}

			repos, err := reposCfg.Load()
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				return goerr.New("no repositories configured")
			}

			tracker := githubCfg.NewTracker()
			client, err := githubCfg.NewClient(tracker)
			if err != nil {
				return err
			}
			creds, err := githubCfg.CredentialSource(tracker)
			if err != nil {
				return err
			}
			cred, err := creds.Credential(ctx)
			if err != nil {
				return err
			}

			store, closeStore, err := storageCfg.Open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			var cacheOpts []cache.Option
			if store != nil {
				cacheOpts = append(cacheOpts, cache.WithStore(store))
			}
			resultCache := cache.NewMemory(cacheOpts...)
			if _, err := resultCache.Load(ctx); err != nil {
				ctxlog.From(ctx).Warn("Failed to load persisted results", "error", err)
			}

			dashboardUC := usecase.NewDashboard(client, resultCache, tracker, dashboardCfg.Options()...)
			results, err := dashboardUC.FetchAll(ctx, cred, repos, refresh)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return goerr.Wrap(err, "failed to encode results")
				}
			} else {
				printResults(os.Stdout, results, dashboardUC.Usage())
			}

			if slackCfg.Enabled() {
				posted, err := slack.New(slackCfg.WebhookURL, slackCfg.Channel).PostDigest(ctx, results)
				if err != nil {
					return err
				}
				ctxlog.From(ctx).Info("Posted Slack digest", "repositories", posted)
			}

			return nil
		},
	}
}

var (
	repoColor    = color.New(color.FgCyan, color.Bold)
	changedColor = color.New(color.FgYellow)
	cleanColor   = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
)

func printResults(w io.Writer, results []*model.RepositoryResult, u model.RateUsage) {
	for _, r := range results {
		repoColor.Fprintf(w, "%s", r.Ref().Key())

		switch r.Status {
		case model.StatusReleased:
			fmt.Fprintf(w, " %s ", r.Release.Tag)
			dimColor.Fprintf(w, "(%s)", r.Release.Date.Format("2006-01-02"))
			fmt.Fprintln(w)
			if !r.HasChanges {
				cleanColor.Fprintln(w, "  up to date")
				continue
			}
			changedColor.Fprintf(w, "  %d commits, %d merged pull requests since release\n", r.CommitsCount, r.PRsCount)
			for _, pr := range r.PRs {
				fmt.Fprintf(w, "  #%-5d %s ", pr.Number, pr.Title)
				dimColor.Fprintf(w, "@%s\n", pr.Author)
			}
			for _, cm := range r.Commits {
				dimColor.Fprintf(w, "  %s ", cm.SHA)
				fmt.Fprintf(w, "%s\n", cm.Message)
			}

		case model.StatusNoRelease:
			fmt.Fprintln(w)
			dimColor.Fprintf(w, "  %s\n", r.Error)

		default:
			fmt.Fprintln(w)
			errorColor.Fprintf(w, "  %s", r.Error)
			if r.StatusCode != 0 {
				errorColor.Fprintf(w, " (%d)", r.StatusCode)
			}
			fmt.Fprintln(w)
		}
	}

	dimColor.Fprintf(w, "\nAPI usage: %d/%d (%d%%), resets in %d minutes\n",
		u.Used, u.Limit, u.Percentage, u.ResetInMinutes)
}
