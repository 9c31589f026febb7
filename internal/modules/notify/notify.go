// Package notify renders reader notifications and delivers them through the
// task queue.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/pkg/mail"
	"github.com/newsroom/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskBroadcast is the queue task type carrying one rendered message.
const TaskBroadcast = "notify.broadcast"

// Enqueuer is the part of the task queue the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*taskqueue.Task, error)
}

type Config struct {
	SiteURL  string
	SiteName string
	// OverrideRecipients replaces every computed recipient list when set.
	OverrideRecipients []string
	PostCreate         bool
}

// Notification is a message about a post sent to many readers at once.
type Notification struct {
	Subject    string
	Heading    string
	Preview    string
	Text       string
	PostID     string
	Recipients []string
}

type broadcastPayload struct {
	Subject    string   `json:"subject"`
	HTML       string   `json:"html"`
	Text       string   `json:"text"`
	Recipients []string `json:"recipients"`
}

type Service struct {
	db        *gorm.DB
	transport mail.Transport
	queue     Enqueuer
	cfg       Config
	logger    *zap.Logger
}

func NewService(db *gorm.DB, transport mail.Transport, queue Enqueuer, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Service{db: db, transport: transport, queue: queue, cfg: cfg, logger: logger.Named("Notify")}
}

// Register binds the broadcast handler to w.
func (s *Service) Register(w *taskqueue.Worker) {
	w.Handle(TaskBroadcast, s.HandleBroadcast)
}

// PostLink is the public address of a post.
func (s *Service) PostLink(postID string) string {
	return s.cfg.SiteURL + "/news/" + postID
}

// Render produces the HTML and plain-text bodies shared by every recipient.
func (s *Service) Render(n Notification) (html, text string, err error) {
	html, err = mail.RenderPostPreview(mail.PostPreviewData{
		Heading:  n.Heading,
		Text:     n.Preview,
		Link:     s.PostLink(n.PostID),
		SiteName: s.cfg.SiteName,
	})
	if err != nil {
		return "", "", fmt.Errorf("render notification: %w", err)
	}
	return html, n.Text, nil
}

func (s *Service) recipients(list []string) []string {
	if len(s.cfg.OverrideRecipients) > 0 {
		list = s.cfg.OverrideRecipients
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, addr := range list {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Broadcast renders n once and queues it for delivery. It returns (nil, nil)
// when no recipient remains.
func (s *Service) Broadcast(ctx context.Context, n Notification) (*taskqueue.Task, error) {
	to := s.recipients(n.Recipients)
	if len(to) == 0 {
		return nil, nil
	}
	html, text, err := s.Render(n)
	if err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, TaskBroadcast, broadcastPayload{
		Subject:    n.Subject,
		HTML:       html,
		Text:       text,
		Recipients: to,
	}, "")
}

// SendNow renders n and delivers it synchronously.
func (s *Service) SendNow(ctx context.Context, n Notification) error {
	to := s.recipients(n.Recipients)
	if len(to) == 0 {
		return mail.ErrNoRecipients
	}
	html, text, err := s.Render(n)
	if err != nil {
		return err
	}
	_, errs := s.deliver(ctx, broadcastPayload{Subject: n.Subject, HTML: html, Text: text, Recipients: to})
	return errors.Join(errs...)
}

// deliver sends one message per recipient so addresses are not disclosed to
// each other. It returns the recipients that failed.
func (s *Service) deliver(ctx context.Context, p broadcastPayload) ([]string, []error) {
	var failed []string
	var errs []error
	for _, addr := range p.Recipients {
		err := s.transport.Send(ctx, mail.Message{
			To:      []string{addr},
			Subject: p.Subject,
			HTML:    p.HTML,
			Text:    p.Text,
		})
		if err != nil {
			failed = append(failed, addr)
			errs = append(errs, err)
		}
	}
	return failed, errs
}

// HandleBroadcast is the queue handler for TaskBroadcast. On partial failure
// it narrows the payload to the failed recipients before the retry.
func (s *Service) HandleBroadcast(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var p broadcastPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode broadcast: %w", err))
	}
	if len(p.Recipients) == 0 {
		return map[string]int{"sent": 0}, nil
	}

	failed, errs := s.deliver(ctx, p)
	if len(failed) == 0 {
		return map[string]int{"sent": len(p.Recipients)}, nil
	}

	p.Recipients = failed
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	task.Payload = raw
	return nil, fmt.Errorf("%d recipient(s) failed: %w", len(failed), errors.Join(errs...))
}

// OnCommentCreate tells every user with an email about a new comment.
// Failures are logged and never reach the caller.
func (s *Service) OnCommentCreate(ctx context.Context, comment *models.CommentModel, post *models.PostModel, username string) {
	var emails []string
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("email <> ''").
		Pluck("email", &emails).Error; err != nil {
		s.logger.Error("load comment recipients failed", zap.Error(err))
		return
	}

	link := s.PostLink(post.ID)
	text := fmt.Sprintf("User %s left a new comment on post %q.\n%s", username, post.Title, link)
	task, err := s.Broadcast(ctx, Notification{
		Subject:    "New comment on post",
		Heading:    post.Title,
		Preview:    fmt.Sprintf("User %s left a new comment: %s", username, comment.Text),
		Text:       text,
		PostID:     post.ID,
		Recipients: emails,
	})
	s.logQueued(task, err, zap.String("comment_id", comment.ID))
}

// OnPostCreate tells the subscribers of the post's category about it.
func (s *Service) OnPostCreate(ctx context.Context, post *models.PostModel) {
	if !s.cfg.PostCreate {
		return
	}
	db := s.db.WithContext(ctx)
	var emails []string
	err := db.Model(&models.UserModel{}).
		Where("id IN (?)", db.Table("category_subscribers").Select("user_id").Where("category_id = ?", post.CategoryID)).
		Where("email <> ''").
		Pluck("email", &emails).Error
	if err != nil {
		s.logger.Error("load subscribers failed", zap.Error(err))
		return
	}

	task, err := s.Broadcast(ctx, Notification{
		Subject:    post.Title,
		Heading:    post.Title,
		Preview:    post.Preview(),
		PostID:     post.ID,
		Recipients: emails,
	})
	s.logQueued(task, err, zap.String("post_id", post.ID))
}

func (s *Service) logQueued(task *taskqueue.Task, err error, field zap.Field) {
	switch {
	case err != nil:
		s.logger.Error("queue notification failed", field, zap.Error(err))
	case task != nil:
		s.logger.Debug("notification queued", field, zap.String("task_id", task.ID))
	}
}
