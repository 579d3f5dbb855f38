// Package jobs holds the background work that runs on a schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"civicsync/events"
	"civicsync/models"
	"civicsync/store"
)

const runTimeout = 2 * time.Minute

var log = logrus.WithField("prefix", "jobs")

// PriorityJob refreshes the priority score of unresolved issues, which
// grows with their age.
type PriorityJob struct {
	store    store.IssueStore
	notifier events.Notifier
	now      func() time.Time
}

func NewPriorityJob(s store.IssueStore, notifier events.Notifier) *PriorityJob {
	return &PriorityJob{
		store:    s,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run implements cron.Job.
func (j *PriorityJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	updated, err := j.Recompute(ctx)
	if err != nil {
		log.Errorf("Priority recompute failed: %v", err)
		return
	}
	log.Infof("Priority recompute updated %d issue(s)", updated)
}

// Recompute writes the scores that changed and returns how many did.
func (j *PriorityJob) Recompute(ctx context.Context) (int, error) {
	issues, err := j.store.ListOpenIssues(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open issues: %w", err)
	}

	now := j.now()
	updated := 0
	for i := range issues {
		issue := &issues[i]
		score := models.PriorityScore(*issue, now)
		if score == issue.PriorityScore {
			continue
		}
		if err := j.store.SetPriorityScore(ctx, issue.ID, score); err != nil {
			log.Warnf("Failed to update priority of %s: %v", issue.ID.Hex(), err)
			continue
		}
		issue.PriorityScore = score
		events.PublishQuietly(ctx, j.notifier, events.NewChange(events.Update, issue))
		updated++
	}
	return updated, nil
}

// Start schedules job on spec (standard cron syntax or descriptors such as
// "@every 15m") and starts the scheduler.
func Start(spec string, job cron.Job) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
