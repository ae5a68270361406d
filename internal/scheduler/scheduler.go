// Package scheduler drives periodic reconciliation: every interval it walks
// the active campaigns and reconciles their ready datasets.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	ConfigHolder *config.ReconcileConfigHolder
	CampaignSvc  campaigndomain.Service
	DatasetSvc   datasetdomain.Service
	ReconcileSvc reconciledomain.Service
}

type Scheduler struct {
	log          *zap.Logger
	clock        clock.Clock
	configHolder *config.ReconcileConfigHolder
	campaignSvc  campaigndomain.Service
	datasetSvc   datasetdomain.Service
	reconcileSvc reconciledomain.Service
}

var ErrInvalidParams = errors.New("scheduler: missing dependency")

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.ConfigHolder == nil ||
		p.CampaignSvc == nil || p.DatasetSvc == nil || p.ReconcileSvc == nil {
		return nil, ErrInvalidParams
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler"),
		clock:        p.Clock,
		configHolder: p.ConfigHolder,
		campaignSvc:  p.CampaignSvc,
		datasetSvc:   p.DatasetSvc,
		reconcileSvc: p.ReconcileSvc,
	}, nil
}

// RunForever loops until the context is canceled. The interval is re-read
// every turn so config file edits take effect without a restart.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		interval := s.configHolder.Get().WorkerInterval
		timer := time.NewTimer(interval)

		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("reconciliation sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce reconciles every ready dataset of every active campaign. Each
// dataset gets its own timeout; one campaign's failure does not stop the
// sweep.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	cfg := s.configHolder.Get()

	campaigns, err := s.campaignSvc.ListActive(ctx)
	if err != nil {
		return err
	}

	var sweepErr error
	for _, campaign := range campaigns {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		datasets, err := s.datasetSvc.FindReady(ctx, campaign.ID)
		if err != nil {
			sweepErr = errors.Join(sweepErr, err)
			continue
		}

		for _, dataset := range datasets {
			if err := s.reconcileDataset(ctx, campaign.ID, dataset, cfg.JobTimeout); err != nil {
				sweepErr = errors.Join(sweepErr, err)
			}
		}
	}
	return sweepErr
}

func (s *Scheduler) reconcileDataset(ctx context.Context, campaignID snowflake.ID, dataset *datasetdomain.Dataset, timeout time.Duration) error {
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock.Now()
	result, err := s.reconcileSvc.Reconcile(jobCtx, reconciledomain.ReconcileRequest{
		CampaignID: dataset.CampaignID,
		DatasetID:  dataset.ID,
	})
	if err != nil {
		s.log.Error("dataset reconciliation failed",
			zap.String("campaign_id", campaignID.String()),
			zap.String("dataset_id", dataset.ID.String()),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("dataset reconciled",
		zap.String("campaign_id", campaignID.String()),
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("run_id", result.RunID),
		zap.Int("validated", result.Validated),
		zap.Int("rejected", result.Rejected),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Duration("took", s.clock.Now().Sub(start)),
	)
	return nil
}
