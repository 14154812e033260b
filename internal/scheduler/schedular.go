package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/internal/services"
)

const (
	probeTimeout = 30 * time.Second
	// probeLagDays keeps the probe date inside the completed part of the
	// archive; POWER publishes with a few days of delay.
	probeLagDays = 7
)

// Probe periodically checks that the primary REST provider answers, and
// serves the latest result to the health endpoint.
type Probe struct {
	provider services.Provider
	location dataset.Location
	spec     string
	logger   *zap.Logger
	cron     *cron.Cron

	mu        sync.RWMutex
	checked   bool
	healthy   bool
	lastCheck time.Time
	latency   time.Duration
	lastError string
	runs      int
}

func NewProbe(provider services.Provider, location dataset.Location, spec string, logger *zap.Logger) *Probe {
	return &Probe{
		provider: provider,
		location: location,
		spec:     spec,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (p *Probe) Start() error {
	if _, err := p.cron.AddFunc(p.spec, p.runCheck); err != nil {
		return err
	}
	p.cron.Start()

	p.logger.Info("Availability probe started",
		zap.String("provider", p.provider.Label()),
		zap.String("spec", p.spec))

	// Run immediately on start
	go p.runCheck()
	return nil
}

func (p *Probe) Stop() {
	p.logger.Info("Stopping availability probe")
	<-p.cron.Stop().Done()
}

// ForceRun triggers a check outside the schedule.
func (p *Probe) ForceRun() {
	go p.runCheck()
}

func (p *Probe) runCheck() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	day := probeDate()
	_, err := p.provider.Fetch(ctx, dataset.Query{
		Location:  p.location,
		Start:     day,
		End:       day,
		Variables: []dataset.Variable{dataset.VarTemperature},
	})
	latency := time.Since(startTime)

	p.mu.Lock()
	p.checked = true
	p.healthy = err == nil
	p.lastCheck = startTime
	p.latency = latency
	p.runs++
	if err != nil {
		p.lastError = err.Error()
	} else {
		p.lastError = ""
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("Provider probe failed",
			zap.String("provider", p.provider.Label()),
			zap.Duration("latency", latency),
			zap.Error(err))
		return
	}
	p.logger.Info("Provider probe succeeded",
		zap.String("provider", p.provider.Label()),
		zap.Duration("latency", latency))
}

func (p *Probe) GetStatus() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := map[string]interface{}{
		"provider": p.provider.Label(),
		"interval": p.spec,
		"checked":  p.checked,
		"healthy":  p.healthy,
		"runs":     p.runs,
	}
	if p.checked {
		status["last_check"] = p.lastCheck
		status["latency_ms"] = p.latency.Milliseconds()
	}
	if p.lastError != "" {
		status["last_error"] = p.lastError
	}
	return status
}

func probeDate() time.Time {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -probeLagDays)
}
