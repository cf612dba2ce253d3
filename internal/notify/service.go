// Package notify ties the failure source to the notification pipeline.
package notify

import (
	"context"
	"fmt"

	"github.com/failwatch/failwatch/internal/pipeline"
	"github.com/failwatch/failwatch/internal/source"
	"github.com/failwatch/failwatch/pkg/models"
)

// Service fetches the latest failure, resolves its recipient, and runs it
// through the pipeline.
type Service struct {
	source           source.Source
	pipeline         *pipeline.Pipeline
	defaultRecipient string
}

func NewService(src source.Source, pipe *pipeline.Pipeline, defaultRecipient string) *Service {
	return &Service{source: src, pipeline: pipe, defaultRecipient: defaultRecipient}
}

// NotifyLatest processes the most recent failure. It returns
// source.ErrNoFailures unwrapped when the failures table is empty, so
// callers can present "nothing to do" distinctly from any error.
func (s *Service) NotifyLatest(ctx context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error) {
	rec, err := s.source.FetchLatest(ctx)
	if err != nil {
		if err == source.ErrNoFailures {
			return pipeline.Outcome{}, nil, err
		}
		return pipeline.Outcome{}, nil, fmt.Errorf("fetching latest failure: %w", err)
	}

	rec.Recipient = source.ResolveRecipient(*rec, s.defaultRecipient)

	outcome := s.pipeline.Process(ctx, *rec, pipeline.Options{ForceBypassThrottle: force})
	return outcome, rec, nil
}
