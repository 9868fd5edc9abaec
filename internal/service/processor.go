package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobProcessor re-matches pending and declined jobs in the background
type JobProcessor struct {
	jobService *JobService
	interval   time.Duration
	logger     *slog.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(jobService *JobService, interval time.Duration, logger *slog.Logger) *JobProcessor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &JobProcessor{
		jobService: jobService,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the background job processing
func (jp *JobProcessor) Start() {
	go jp.processLoop()
	jp.logger.Info("Job processor started", "interval", jp.interval)
}

// Stop stops the background job processing and waits for the current pass
func (jp *JobProcessor) Stop() {
	jp.stopOnce.Do(func() {
		close(jp.stopChan)
		<-jp.done
		jp.logger.Info("Job processor stopped")
	})
}

func (jp *JobProcessor) processLoop() {
	defer close(jp.done)

	ticker := time.NewTicker(jp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.processPendingJobs()
		case <-jp.stopChan:
			return
		}
	}
}

func (jp *JobProcessor) processPendingJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), jp.interval)
	defer cancel()

	if _, err := jp.jobService.ProcessPendingJobs(ctx); err != nil {
		jp.logger.Error("Error processing pending jobs", "error", err)
	}
}
