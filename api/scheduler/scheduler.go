package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
	templates "github.com/citizenvoice/citizenvoice-api/templates/html"
)

// Job names double as lock keys
const (
	inspectionReminderJob = "inspection_reminders"
	communityStatsJob     = "community_stats"
)

// reminderLead is how far ahead of an inspection its inspector is emailed
const reminderLead = 24 * time.Hour

// Scheduler runs periodic background jobs. Each run takes a distributed lock
// so only one replica does the work.
type Scheduler struct {
	cron       *cron.Cron
	Stores     databases.Stores
	Mailer     services.Mailer
	ClientURL  string
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(stores databases.Stores, mailer services.Mailer, clientURL string) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		Stores:     stores,
		Mailer:     mailer,
		ClientURL:  clientURL,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	_, err := s.cron.AddFunc("*/15 * * * *", func() {
		s.runLocked(inspectionReminderJob, 10*time.Minute, func(ctx context.Context) error {
			_, err := s.RemindInspections(ctx, time.Now().UTC())
			return err
		})
	})
	if err != nil {
		zap.S().Errorw("failed to register inspection reminder job", "error", err)
	}

	// counters drift when a stat update fails after its write, recount nightly
	_, err = s.cron.AddFunc("30 2 * * *", func() {
		s.runLocked(communityStatsJob, 30*time.Minute, s.ReconcileCommunityStats)
	})
	if err != nil {
		zap.S().Errorw("failed to register community stats job", "error", err)
	}

	s.cron.Start()
	zap.S().Infow("scheduler started", "instance", s.instanceID)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("scheduler stopped")
}

// runLocked runs fn while holding the job's lock. A held lock means another
// instance is running it, so the run is skipped.
func (s *Scheduler) runLocked(job string, ttl time.Duration, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	acquired, err := s.Stores.Locks.TryAcquireLock(ctx, job, s.instanceID, ttl)
	if err != nil {
		zap.S().Errorw("failed to acquire job lock", "job", job, "error", err)
		return false
	}
	if !acquired {
		zap.S().Debugw("job already running on another instance, skipping", "job", job)
		return false
	}
	defer func() {
		if err := s.Stores.Locks.ReleaseLock(context.Background(), job, s.instanceID); err != nil {
			zap.S().Warnw("failed to release job lock", "job", job, "error", err)
		}
	}()

	start := time.Now()
	if err := fn(ctx); err != nil {
		zap.S().Errorw("job failed", "job", job, "error", err, "duration", time.Since(start))
		return true
	}
	zap.S().Infow("job finished", "job", job, "instance", s.instanceID, "duration", time.Since(start))
	return true
}

// RemindInspections emails the inspector of every open inspection scheduled
// within the next day and marks it reminded. It returns how many were sent.
func (s *Scheduler) RemindInspections(ctx context.Context, now time.Time) (int, error) {
	due, err := s.Stores.Inspections.DueForReminder(ctx, now, now.Add(reminderLead))
	if err != nil {
		return 0, fmt.Errorf("find due inspections: %w", err)
	}

	sent := 0
	for _, insp := range due {
		if insp.AssignedTo == nil {
			continue
		}
		inspector, err := s.Stores.Users.FindByID(ctx, *insp.AssignedTo)
		if err != nil {
			zap.S().Warnw("inspector not found, skipping reminder", "inspection", insp.InspectionID, "error", err)
			continue
		}
		if err := s.remind(ctx, inspector, insp); err != nil {
			zap.S().Warnw("failed to send inspection reminder", "inspection", insp.InspectionID, "error", err)
			continue
		}
		if err := s.Stores.Inspections.MarkReminded(ctx, insp.ID, now); err != nil {
			return sent, fmt.Errorf("mark %s reminded: %w", insp.InspectionID, err)
		}
		sent++
	}
	return sent, nil
}

func (s *Scheduler) remind(ctx context.Context, inspector *models.User, insp models.Inspection) error {
	subject, plain, html := templates.InspectionReminderEmail(inspector.Name, insp.InspectionID, insp.Title, insp.ScheduledDate, s.ClientURL)
	return s.Mailer.Send(ctx, inspector.Name, inspector.Email, subject, plain, html)
}

// ReconcileCommunityStats recounts members and issues for every community
func (s *Scheduler) ReconcileCommunityStats(ctx context.Context) error {
	page := databases.Page{Page: 1, Limit: databases.MaxLimit}
	updated := 0
	for {
		communities, err := s.Stores.Communities.List(ctx, "", page)
		if err != nil {
			return fmt.Errorf("list communities: %w", err)
		}
		for _, c := range communities {
			stats, err := s.countStats(ctx, c)
			if err != nil {
				return err
			}
			if stats == c.Stats {
				continue
			}
			if err := s.Stores.Communities.SetStats(ctx, c.DistrictCode, stats); err != nil {
				return fmt.Errorf("set stats for %s: %w", c.DistrictCode, err)
			}
			updated++
		}
		if len(communities) < page.Limit {
			break
		}
		page.Page++
	}
	zap.S().Infow("community stats reconciled", "updated", updated)
	return nil
}

func (s *Scheduler) countStats(ctx context.Context, c models.Community) (models.CommunityStats, error) {
	reported, err := s.Stores.Issues.CountByDistrict(ctx, c.DistrictCode, "")
	if err != nil {
		return models.CommunityStats{}, fmt.Errorf("count issues in %s: %w", c.DistrictCode, err)
	}
	resolved, err := s.Stores.Issues.CountByDistrict(ctx, c.DistrictCode, models.IssueResolved)
	if err != nil {
		return models.CommunityStats{}, fmt.Errorf("count resolved issues in %s: %w", c.DistrictCode, err)
	}
	return models.CommunityStats{
		TotalMembers:        len(c.Members),
		TotalIssuesReported: int(reported),
		TotalIssuesResolved: int(resolved),
	}, nil
}
