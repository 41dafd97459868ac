package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/session"
	"github.com/sells-group/lost-item-finder/internal/store"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// snapshotsKept bounds the local history cache.
const snapshotsKept = 10

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Review past detections",
	Long:  "Fetches the detection history from the backend (or the local cache with --offline) and prints the records or the per-day confidence trend.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")
		trend, _ := cmd.Flags().GetBool("trend")
		method, _ := cmd.Flags().GetString("method")
		offline, _ := cmd.Flags().GetBool("offline")
		formatFlag, _ := cmd.Flags().GetString("format")

		format, err := parseFormat(formatFlag)
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = cfg.History.Limit
		}
		if method == "" {
			method = cfg.History.Method
		}
		agg, err := history.ForMethod(method)
		if err != nil {
			return err
		}

		var records []finder.HistoryRecord
		var points []history.ConfidencePoint
		if offline {
			records, err = cachedHistory(ctx)
			if err != nil {
				return err
			}
			points = agg(records)
		} else {
			sess := session.New(withRetry(newBackend(metrics.New())),
				session.WithAggregator(agg),
				session.WithHistoryLimit(limit),
			)
			if err := sess.SelectMode(ctx, session.ModeHistory); err != nil {
				return eris.Wrap(err, "history")
			}
			st := sess.State()
			if st.Error != "" {
				return eris.Errorf("history: %s", st.Error)
			}
			records, points = st.History, st.ConfidenceSeries

			if err := cacheHistory(ctx, records); err != nil {
				// Cache failures are not fatal.
				zap.L().Warn("history: cache snapshot", zap.Error(err))
			}
		}

		out := cmd.OutOrStdout()
		if trend {
			return render(out, format, points, func(w io.Writer) { formatTrend(w, points) })
		}
		return render(out, format, records, func(w io.Writer) { formatHistory(w, records) })
	},
}

func openCache(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.History.CachePath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func cacheHistory(ctx context.Context, records []finder.HistoryRecord) error {
	if cfg.History.CachePath == "" {
		return nil
	}
	st, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	snap, err := st.SaveHistory(ctx, records)
	if err != nil {
		return err
	}
	pruned, err := st.PruneSnapshots(ctx, snapshotsKept)
	if err != nil {
		return err
	}
	zap.L().Debug("history snapshot cached",
		zap.String("snapshot", snap.ID),
		zap.Int("records", len(records)),
		zap.Int("pruned", pruned),
	)
	return nil
}

func cachedHistory(ctx context.Context) ([]finder.HistoryRecord, error) {
	if cfg.History.CachePath == "" {
		return nil, eris.New("history: --offline needs history.cache_path to be set")
	}
	st, err := openCache(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	snap, err := st.LatestHistory(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, eris.New("history: no cached snapshot")
	}
	zap.L().Info("using cached history",
		zap.Time("fetched_at", snap.FetchedAt),
		zap.Int("records", len(snap.Records)),
	)
	return snap.Records, nil
}

func init() {
	historyCmd.Flags().Int("limit", 0, "maximum records to fetch (default from config)")
	historyCmd.Flags().Bool("trend", false, "print the per-day confidence trend instead of records")
	historyCmd.Flags().String("method", "", "trend aggregation: pairwise or mean (default from config)")
	historyCmd.Flags().Bool("offline", false, "read the last cached snapshot instead of the backend")
	historyCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)
}
