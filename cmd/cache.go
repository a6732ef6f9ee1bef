package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/flw-audit/internal/cache"
)

var cacheDomain string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge cached collection snapshots",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached snapshots and whether they are still fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, profile, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return cacheStatus(cmd.Context(), st, cache.NewPolicy(profile), cacheDomain, cmd.OutOrStdout())
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached snapshots for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheDomain == "" {
			return eris.New("cache purge: --domain is required")
		}
		st, _, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := cachePurge(cmd.Context(), st, cacheDomain)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d snapshot(s) for %s\n", n, cacheDomain)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheDomain, "domain", "", "restrict to one tenant domain")
	cacheCmd.AddCommand(cacheStatusCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache(ctx context.Context) (cache.Store, cache.Profile, error) {
	if err := cfg.Validate("cache"); err != nil {
		return nil, cache.Profile{}, err
	}
	profile, err := cacheProfile(cfg.Cache)
	if err != nil {
		return nil, cache.Profile{}, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, cache.Profile{}, err
	}
	return st, profile, nil
}

func domainPrefix(domain string) string {
	if domain == "" {
		return ""
	}
	return domain + ":"
}

// cacheStatus prints one row per snapshot. Freshness is judged by age alone
// since no remote count is fetched here.
func cacheStatus(ctx context.Context, st cache.Store, policy cache.Policy, domain string, out io.Writer) error {
	infos, err := st.List(ctx, domainPrefix(domain))
	if err != nil {
		return eris.Wrap(err, "cache status")
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no cached snapshots")
		return nil
	}

	now := policy.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tFETCHED_AT\tAGE\tITEMS\tFRESH")
	for _, info := range infos {
		snap := &cache.Snapshot{Key: info.Key, FetchedAt: info.FetchedAt, ItemCount: info.ItemCount}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n",
			info.Key,
			info.FetchedAt.UTC().Format(time.RFC3339),
			now.Sub(info.FetchedAt).Truncate(time.Second),
			info.ItemCount,
			policy.IsFresh(snap),
		)
	}
	return tw.Flush()
}

func cachePurge(ctx context.Context, st cache.Store, domain string) (int, error) {
	infos, err := st.List(ctx, domainPrefix(domain))
	if err != nil {
		return 0, eris.Wrap(err, "cache purge: list")
	}
	for _, info := range infos {
		if err := st.Delete(ctx, info.Key); err != nil {
			return 0, eris.Wrapf(err, "cache purge: delete %s", info.Key)
		}
		zap.L().Info("snapshot purged", zap.String("key", info.Key))
	}
	return len(infos), nil
}
