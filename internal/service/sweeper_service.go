package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type sweepableBookingRepository interface {
	CompleteElapsed(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweeperService periodically marks confirmed bookings whose slot time has
// passed as completed, so the ledger converges without manual staff action.
type SweeperService struct {
	bookings sweepableBookingRepository
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewSweeperService instantiates SweeperService with a cron spec such as
// "@every 15m".
func NewSweeperService(bookings sweepableBookingRepository, schedule string, logger *zap.Logger) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 15m"
	}
	return &SweeperService{bookings: bookings, schedule: schedule, logger: logger}
}

// Start registers and launches the sweep job.
func (s *SweeperService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("booking completion sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron scheduler, waiting for a running sweep to finish.
func (s *SweeperService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *SweeperService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	affected, err := s.bookings.CompleteElapsed(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("booking sweep failed", zap.Error(err))
		return
	}
	if affected > 0 {
		s.logger.Info("bookings auto-completed", zap.Int64("count", affected))
	}
}
