package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"content_aggregator/internal/config"
	"content_aggregator/internal/domain"
	"content_aggregator/internal/metrics"
	"content_aggregator/internal/retry"
)

// finalizeTimeout bounds the storage work that follows a post. It runs on a
// context detached from the job deadline so a posted comment is still marked.
const finalizeTimeout = 30 * time.Second

// PushService runs the select -> generate -> post -> finalize cycle that
// comments on stored contents.
type PushService struct {
	contents    ContentStore
	comments    CommentStore
	client      CommentClient
	txManager   TransactionManager
	publisher   Publisher
	logger      *slog.Logger
	markSkipped bool
	loopDelay   time.Duration
	sleep       retry.Sleeper
}

type PushOption func(*PushService)

func WithPushSleeper(sleep retry.Sleeper) PushOption {
	return func(s *PushService) { s.sleep = sleep }
}

func NewPushService(
	contents ContentStore,
	comments CommentStore,
	client CommentClient,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.PushConfig,
	opts ...PushOption,
) *PushService {
	s := &PushService{
		contents:    contents,
		comments:    comments,
		client:      client,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger.With("worker", "push"),
		markSkipped: cfg.SkipMarksPushed(),
		loopDelay:   cfg.LoopDelay,
		sleep:       retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs a single cycle on the oldest unpushed content.
//
// The content row stays locked from selection until it is marked, so two
// concurrent workers never post for the same content. Failures of the comment
// API leave the content eligible for the next cycle. The returned error is
// reserved for storage failures.
//
// Only the comment API calls observe ctx. The transaction and the storage
// calls run detached from it, each bounded by finalizeTimeout, so a deadline
// that fires mid-post cannot roll back the mark of a comment already posted.
func (s *PushService) RunOnce(ctx context.Context) (*domain.PushResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &domain.PushResult{Outcome: domain.PushIdle}

	var generated *domain.GeneratedComment
	var posted *domain.PostedComment

	err := s.txManager.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		claimCtx, cancel := context.WithTimeout(txCtx, finalizeTimeout)
		content, err := s.contents.ClaimNextUnpushed(claimCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("claim content: %w", err)
		}
		if content == nil {
			return nil
		}
		result.ContentID = content.ID
		result.UniqueID = content.UniqueID

		logger := s.logger.With("content_id", content.ID, "unique_id", content.UniqueID)

		generated, err = s.client.Generate(ctx, content)
		if err != nil {
			logger.Error("comment generation failed", "error", err)
			result.Outcome = domain.PushGenerateFailed
			return nil
		}

		posted, err = s.client.Post(ctx, content, generated)

		finalCtx, cancel := context.WithTimeout(txCtx, finalizeTimeout)
		defer cancel()

		switch {
		case errors.Is(err, domain.ErrNotCommentable):
			result.Outcome = domain.PushSkipped
			if !s.markSkipped {
				logger.Warn("content not available for commenting, leaving it eligible")
				return nil
			}
			logger.Warn("content not available for commenting, marking skipped")
			if err := s.contents.MarkPushed(finalCtx, content.ID, true); err != nil {
				return fmt.Errorf("mark skipped: %w", err)
			}
			return nil
		case err != nil:
			logger.Error("comment posting failed", "error", err)
			result.Outcome = domain.PushPostFailed
			return nil
		}

		if err := s.contents.MarkPushed(finalCtx, content.ID, false); err != nil {
			return fmt.Errorf("mark pushed: %w", err)
		}
		result.Outcome = domain.PushPosted
		return nil
	})
	if err != nil {
		metrics.PushCyclesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Outcome == domain.PushPosted {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		s.saveComment(saveCtx, result, generated, posted)
		cancel()
	}

	metrics.PushCyclesTotal.WithLabelValues(string(result.Outcome)).Inc()

	if result.Outcome == domain.PushIdle {
		s.logger.Debug("no content available to push")
	} else {
		s.logger.Info("push cycle finished",
			"outcome", result.Outcome,
			"content_id", result.ContentID,
			"comment_id", result.CommentID,
		)
	}

	return result, nil
}

// saveComment records a comment that was already posted and committed as
// pushed. A failure here loses the local record but never causes a repost.
func (s *PushService) saveComment(ctx context.Context, result *domain.PushResult, generated *domain.GeneratedComment, posted *domain.PostedComment) {
	comment := &domain.Comment{
		UniqueID:   commentUniqueID(generated, posted),
		ContentID:  result.ContentID,
		Text:       generated.CommentText,
		Posted:     true,
		RawPayload: nullJSON(generated.Raw),
	}
	result.CommentID = comment.UniqueID

	id, err := s.comments.Create(ctx, comment)
	if err != nil {
		s.logger.Error("failed to persist posted comment",
			"content_id", result.ContentID,
			"comment_id", comment.UniqueID,
			"error", err,
		)
		result.Outcome = domain.PushPersistFailed
		return
	}
	comment.ID = id

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishComment(ctx, comment); err != nil {
		s.logger.Warn("failed to publish comment event", "comment_id", comment.UniqueID, "error", err)
	}
}

// Run repeats RunOnce with a fixed delay between cycles, whatever their
// outcome, until ctx is done.
func (s *PushService) Run(ctx context.Context) error {
	s.logger.Info("push loop started", "delay", s.loopDelay)

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("push cycle failed", "error", err)
		}

		if err := s.sleep(ctx, s.loopDelay); err != nil {
			s.logger.Info("push loop stopped")
			return err
		}
	}
}

func commentUniqueID(generated *domain.GeneratedComment, posted *domain.PostedComment) string {
	if generated != nil && generated.ID != "" {
		return generated.ID
	}
	if posted != nil && posted.ID != "" {
		return posted.ID
	}
	return uuid.NewString()
}
