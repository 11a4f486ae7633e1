package service

import (
	"context"
	"fmt"

	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically cancels deposits whose payment window closed. The
// in-memory watchdog timers cover the common case; the sweep covers timers
// lost across a restart.
type Sweeper struct {
	deposits *DepositService
	cron     *cron.Cron
}

func NewSweeper(deposits *DepositService) *Sweeper {
	return &Sweeper{
		deposits: deposits,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		if err := s.deposits.ExpireOverdue(context.Background()); err != nil {
			logger.Log.Error("error sweeping overdue deposits", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling overdue sweep: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
