package search

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// scanning the store.
type Service struct {
	meili    *Meili
	fallback *Fallback
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.WithError(err).Warn("search: meilisearch error, falling back to store scan")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.WithError(err).Error("search: fallback error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBoard indexes a board (fire-and-forget to Meilisearch).
func (s *Service) IndexBoard(board store.Board) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromBoard(board)
	go func() {
		if err := s.meili.IndexBoard(record); err != nil {
			log.WithError(err).WithField("board_id", record.ID).Warn("search: index board")
		}
	}()
}

// DeleteBoard removes a board from the search index (fire-and-forget).
func (s *Service) DeleteBoard(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBoard(id); err != nil {
			log.WithError(err).WithField("board_id", id).Warn("search: delete board")
		}
	}()
}

// ReindexAll reads every board from the store and pushes it to Meilisearch.
// Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.WithError(err).Error("search: reindex load failed")
		return
	}
	if err := s.meili.IndexBoards(records); err != nil {
		log.WithError(err).Error("search: reindex boards")
		return
	}
	log.WithField("boards", len(records)).Info("search: reindexed boards")
}
