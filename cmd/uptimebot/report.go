package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/logger"
	"github.com/edgard/uptimebot/internal/report"
	"github.com/edgard/uptimebot/internal/storage"
)

func newReportCmd(configPath *string) *cobra.Command {
	var tenant, view string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print today's group summaries of a tenant from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, ok := report.ParseView(view)
			if !ok {
				return fmt.Errorf("unknown view %q, want grouped or daily", view)
			}
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if _, ok := cfg.TenantByID(tenant); !ok {
				return fmt.Errorf("unknown tenant %q", tenant)
			}

			log := logger.New(cmd.ErrOrStderr(), cfg.Logger.Level, cfg.Logger.JSON)
			db, store, ledgerStore, err := openStores(cfg, log)
			if err != nil {
				return err
			}
			defer database.CloseDB(db)

			ctx := cmd.Context()
			key := ledger.TenantKey(tenant)
			rows, err := ledgerStore.LoadIntervals(ctx, key, time.Now().In(cfg.Tracker.Location))
			if err != nil {
				return fmt.Errorf("failed to load intervals: %w", err)
			}
			groups, err := store.ListTenantGroups(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to list groups: %w", err)
			}

			renderer := report.NewRenderer(report.Labels{
				Topic:       cfg.Report.Topic,
				Average:     cfg.Report.Average,
				Placed:      cfg.Report.Placed,
				StandingNow: cfg.Report.StandingNow,
				NoData:      cfg.Report.NoData,
			}, cfg.Report.CriticalBelow, cfg.Report.WarningBelow)

			return writeReport(cmd.OutOrStdout(), renderer, v, key, groups, rows, cfg.Tracker.Location, log)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant id")
	cmd.Flags().StringVar(&view, "view", string(report.ViewGrouped), "Summary view: grouped or daily")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// writeReport renders one summary per group found in groups or rows.
func writeReport(w io.Writer, r *report.Renderer, view report.View, tenant ledger.TenantKey,
	groups []database.TenantGroup, rows []storage.IntervalRow, loc *time.Location, log *slog.Logger,
) error {
	metas := make(map[int64]*report.GroupMeta)
	meta := func(id int64) *report.GroupMeta {
		m, ok := metas[id]
		if !ok {
			m = &report.GroupMeta{ID: id, TopicNames: map[int64]string{}}
			metas[id] = m
		}
		return m
	}
	for _, g := range groups {
		meta(g.GroupID).Title = g.GroupName
	}

	byGroup := make(map[int64][]ledger.Record)
	for _, row := range rows {
		m := meta(row.GroupID)
		if m.Title == "" {
			m.Title = row.GroupTitle
		}
		if row.TopicName != "" {
			m.TopicNames[row.TopicID] = row.TopicName
		}
		byGroup[row.GroupID] = append(byGroup[row.GroupID], storage.RecordFromRow(tenant, row, loc))
	}

	ids := make([]int64, 0, len(metas))
	for id := range metas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, r.Render(view, *metas[id], byGroup[id])); err != nil {
			return err
		}
	}
	log.Debug("Report written", "tenant", tenant, "groups", len(ids), "rows", len(rows))
	return nil
}
