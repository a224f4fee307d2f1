package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Progress reports frame-loop throughput every Every frames so an operator
// can estimate completion. It carries no state the loop depends on.
type Progress struct {
	logger logrus.FieldLogger
	every  int
	start  time.Time
	total  int
}

// NewProgress returns a reporter logging every `every` frames out of total
// (total may be 0 when unknown).
func NewProgress(logger logrus.FieldLogger, every, total int) *Progress {
	if every <= 0 {
		every = 10
	}
	return &Progress{logger: logger, every: every, start: time.Now(), total: total}
}

// Tick is called after processing the n-th frame (0-based count) of the loop;
// frame is the absolute frame index used in the log line.
func (p *Progress) Tick(n, frame int) {
	if n%p.every != 0 {
		return
	}
	fields := logrus.Fields{"frame": frame, "fps": p.Rate(n)}
	if p.total > 0 {
		fields["done"] = n
		fields["total"] = p.total
	}
	p.logger.WithFields(fields).Info("progress")
}

// Rate returns frames processed per second after n frames.
func (p *Progress) Rate(n int) float64 {
	elapsed := time.Since(p.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed
}
