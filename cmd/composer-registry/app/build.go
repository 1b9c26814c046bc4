package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	registryapp "github.com/stacklok/gitlab-composer-registry/internal/app"
	pkgsync "github.com/stacklok/gitlab-composer-registry/internal/sync"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Check the index once and rebuild it if stale",
		Long: `Run one index check, as a request to /packages.json would, and exit.
Suitable for cron jobs serving the cache directory from a static web server.`,
		RunE: runBuild,
	}
	cmd.Flags().Bool("force", false, "Rebuild even when the index is up to date")
	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manager, closeFn, err := registryapp.NewSyncManager(registryapp.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := manager.Sync(ctx, pkgsync.Options{Force: force})
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}

func printResult(cmd *cobra.Command, result *pkgsync.Result) error {
	out := cmd.OutOrStdout()
	if !result.Rebuilt {
		_, err := fmt.Fprintf(out, "Index is up to date (%d repositories)\n", result.RepositoryCount)
		return err
	}
	_, err := fmt.Fprintf(out, "Index rebuilt (%s): %d packages, %d versions from %d repositories, %d skipped\n",
		result.Reason, result.PackageCount, result.VersionCount, result.RepositoryCount, result.Skipped)
	return err
}

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Erase the repository cache and the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			manager, closeFn, err := registryapp.NewSyncManager(registryapp.WithConfig(cfg))
			if err != nil {
				return err
			}
			defer closeFn()

			if err := manager.ClearCache(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cache %s cleared\n", cfg.CacheDir)
			return err
		},
	}
}
