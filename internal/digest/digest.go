// Package digest delivers scheduled per-workspace summary webhooks.
package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

// checkInterval is the scheduler's tick; with minute-granularity schedules a
// faster tick buys nothing.
const checkInterval = 60 * time.Second

// resendGuard suppresses duplicate sends when the process restarts inside
// the scheduled minute.
const resendGuard = 55 * time.Minute

// listLimit caps how many task lines one section of the digest carries.
const listLimit = 15

// Store is the persistence the scheduler needs. *db.Database satisfies it.
type Store interface {
	WorkspacesWithNotifications(ctx context.Context) ([]models.Workspace, error)
	TasksForDigest(ctx context.Context, workspaceID primitive.ObjectID) ([]models.Task, error)
	UpdateNotificationLastSent(ctx context.Context, id primitive.ObjectID, sentAt time.Time) error
}

// Scheduler wakes every minute and posts a task digest to each workspace
// whose notification config matches the current local day and time.
type Scheduler struct {
	store  Store
	logger *utils.Logger
	client *http.Client
	offset *time.Location
}

// NewScheduler builds a scheduler evaluating schedules in a fixed UTC offset
// (hours east of UTC).
func NewScheduler(store Store, logger *utils.Logger, utcOffsetHours int) *Scheduler {
	name := fmt.Sprintf("UTC%+d", utcOffsetHours)
	return &Scheduler{
		store:  store,
		logger: logger,
		client: &http.Client{Timeout: 15 * time.Second},
		offset: time.FixedZone(name, utcOffsetHours*3600),
	}
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		s.logger.Info(ctx, "digest scheduler started (%s)", s.offset.String())
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx, time.Now())
			}
		}
	}()
}

// runOnce evaluates every notification-enabled workspace against now.
func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	local := now.In(s.offset)
	day := int(local.Weekday()) // 0=Sun
	clock := fmt.Sprintf("%02d:%02d", local.Hour(), local.Minute())

	workspaces, err := s.store.WorkspacesWithNotifications(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to fetch workspaces for digests: %v", err)
		return
	}

	for _, ws := range workspaces {
		cfg := ws.NotificationConfig
		if cfg == nil || !cfg.Enabled || cfg.WebhookURL == "" {
			continue
		}
		if !containsDay(cfg.Days, day) || cfg.Time != clock {
			continue
		}
		if cfg.LastSentAt != nil && now.Sub(*cfg.LastSentAt) < resendGuard {
			continue
		}

		sent, err := s.sendDigest(ctx, ws, local)
		if err != nil {
			s.logger.Error(ctx, "digest for workspace %s failed: %v", ws.Name, err)
			continue
		}
		if sent {
			if err := s.store.UpdateNotificationLastSent(ctx, ws.ID, now.UTC()); err != nil {
				s.logger.Error(ctx, "failed to record digest send for %s: %v", ws.Name, err)
			}
		}
	}
}

// sendDigest composes and posts one workspace's digest. It reports false
// without error when the workspace has nothing to report.
func (s *Scheduler) sendDigest(ctx context.Context, ws models.Workspace, local time.Time) (bool, error) {
	tasks, err := s.store.TasksForDigest(ctx, ws.ID)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		return false, nil
	}

	content := ComposeSummary(ws.Name, tasks, local)
	payload := map[string]interface{}{
		"username":   "Khun Phaen Reporter",
		"avatar_url": "https://raw.githubusercontent.com/watchakorn-18k/khu-phaen-tracker-offline/main/static/logo.png",
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Report for %s", ws.Name),
				"description": content,
				"color":       0x4F46E5,
				"footer":      map[string]string{"text": "Khun Phaen Task Tracker ✨"},
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.NotificationConfig.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("webhook returned %s", resp.Status)
	}

	s.logger.Info(ctx, "digest sent for workspace %s (%d tasks)", ws.Name, len(tasks))
	return true, nil
}

// ComposeSummary renders the digest body: completed tasks first, then
// pending ones with a per-status icon, both capped at listLimit lines.
func ComposeSummary(workspaceName string, tasks []models.Task, local time.Time) string {
	var done, pending []models.Task
	for _, t := range tasks {
		if t.Status == "done" {
			done = append(done, t)
		} else {
			pending = append(pending, t)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Daily Summary: %s** - %s\n\n", workspaceName, local.Format("2006-01-02"))

	if len(done) > 0 {
		fmt.Fprintf(&b, "🎯 **Completed Today (%d)**\n", len(done))
		for i, t := range done {
			if i == listLimit {
				fmt.Fprintf(&b, "... and %d more\n", len(done)-listLimit)
				break
			}
			fmt.Fprintf(&b, "• ✅ %s\n", t.Title)
		}
		b.WriteString("\n")
	}

	if len(pending) > 0 {
		fmt.Fprintf(&b, "⏳ **Pending Tasks (%d)**\n", len(pending))
		for i, t := range pending {
			if i == listLimit {
				fmt.Fprintf(&b, "... and %d more\n", len(pending)-listLimit)
				break
			}
			fmt.Fprintf(&b, "• %s %s\n", statusIcon(t.Status), t.Title)
		}
	}

	return b.String()
}

func statusIcon(status string) string {
	switch status {
	case "in-progress":
		return "🔄"
	case "in-test":
		return "🧪"
	default:
		return "📝"
	}
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
