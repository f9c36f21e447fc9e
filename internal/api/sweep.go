package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sweepTimeout = 2 * time.Minute

type SweepStatus struct {
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	RunCount    int        `json:"runCount"`
	LastQueued  int        `json:"lastQueued"`
	TotalQueued int        `json:"totalQueued"`
}

func (s *Server) sweepStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.getSweepStatus())
}

// startSweep kicks off one sweep in the background. A sweep already in flight is
// reported rather than doubled.
func (s *Server) startSweep(c *gin.Context) {
	if !s.internalCaller(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if s.Sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper not configured"})
		return
	}

	s.sweepMu.Lock()
	if s.sweepStatus.Running {
		status := s.sweepStatus
		s.sweepMu.Unlock()
		c.JSON(http.StatusOK, status)
		return
	}
	s.sweepStatus.Running = true
	s.sweepStatus.LastError = ""
	status := s.sweepStatus
	s.sweepMu.Unlock()

	go s.runSweepOnce()
	c.JSON(http.StatusAccepted, status)
}

func (s *Server) runSweepOnce() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	queued, err := s.Sweeper.SweepOnce(ctx)
	s.withSweepStatus(func(st *SweepStatus) {
		st.Running = false
		st.LastRun = &start
		st.RunCount++
		st.LastQueued = queued
		st.TotalQueued += queued
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

func (s *Server) getSweepStatus() SweepStatus {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	return s.sweepStatus
}

func (s *Server) withSweepStatus(update func(*SweepStatus)) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	update(&s.sweepStatus)
}
