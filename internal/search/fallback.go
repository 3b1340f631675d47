package search

import (
	"context"
	"strings"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/analytics"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// BoardLister is the read side of the board store.
type BoardLister interface {
	ListBoards(context.Context) ([]store.Board, error)
}

// Fallback searches board and section titles straight from the store. It
// is used when Meilisearch is not configured or unhealthy.
type Fallback struct {
	boards BoardLister
}

func NewFallback(boards BoardLister) *Fallback {
	return &Fallback{boards: boards}
}

// Healthy follows the store: if the store is down the whole app is down.
func (f *Fallback) Healthy() bool {
	return true
}

func (f *Fallback) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	boards, err := f.boards.ListBoards(ctx)
	if err != nil {
		return nil, 0, err
	}

	var results []Result
	for _, board := range analytics.Filter(boards, q.Text) {
		// Filter keeps every section when the board title matched; expand
		// narrows the section rows back to those that match themselves.
		results = append(results, expand(RecordFromBoard(board), q.Text, q.FilterType)...)
	}
	return page(results, q), len(results), nil
}

// LoadAllRecords reads every board for a full reindex.
func (f *Fallback) LoadAllRecords(ctx context.Context) ([]BoardRecord, error) {
	boards, err := f.boards.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]BoardRecord, 0, len(boards))
	for _, board := range boards {
		records = append(records, RecordFromBoard(board))
	}
	return records, nil
}
