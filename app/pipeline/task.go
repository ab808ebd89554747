package pipeline

import (
	"time"

	"github.com/lysyi3m/opp-comb/app/database"
)

// SourceTask tracks one crawl target's pass through a run.
type SourceTask struct {
	RunID     string
	TargetID  string
	URL       string
	StartedAt *time.Time
}

func NewSourceTask(runID string, target database.CrawlTarget) *SourceTask {
	return &SourceTask{
		RunID:    runID,
		TargetID: target.ID,
		URL:      target.URL,
	}
}

func (t *SourceTask) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *SourceTask) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
