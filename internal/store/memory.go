package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/util"
)

// MemoryStore keeps boards in process memory. Every mutation runs under a
// single lock, which gives appends the same atomicity the Postgres store
// gets from its single-statement insert.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string]*Board
	order  []string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards: make(map[string]*Board),
		now:    time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ListBoards(context.Context) ([]Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Board, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		items = append(items, s.boards[s.order[i]].Clone())
	}
	return items, nil
}

func (s *MemoryStore) GetBoard(_ context.Context, boardID string) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.boards[boardID]
	if !ok {
		return Board{}, fmt.Errorf("get board %s: %w", boardID, ErrNotFound)
	}
	return board.Clone(), nil
}

func (s *MemoryStore) InsertBoard(_ context.Context, board Board) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if board.ID == "" {
		board.ID = util.NewID("brd")
	}
	if _, exists := s.boards[board.ID]; exists {
		return Board{}, fmt.Errorf("insert board %s: %w", board.ID, ErrConflict)
	}
	now := s.now()
	stored := board.Clone()
	stored.ViewCount = 0
	stored.Sections = prepareReplacement(board.Sections, newCounterIndex(), now)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.boards[stored.ID] = &stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

func (s *MemoryStore) DeleteBoard(_ context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[boardID]; !ok {
		return fmt.Errorf("delete board %s: %w", boardID, ErrNotFound)
	}
	delete(s.boards, boardID)
	for i, id := range s.order {
		if id == boardID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) RenameBoard(_ context.Context, boardID, title string) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return Board{}, fmt.Errorf("rename board %s: %w", boardID, ErrNotFound)
	}
	board.Title = title
	board.UpdatedAt = s.now()
	return board.Clone(), nil
}

func (s *MemoryStore) ReplaceSections(_ context.Context, boardID string, sections []Section) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return Board{}, fmt.Errorf("replace sections %s: %w", boardID, ErrNotFound)
	}
	now := s.now()
	board.Sections = prepareReplacement(sections, indexCounters(board.Sections), now)
	board.UpdatedAt = now
	return board.Clone(), nil
}

func (s *MemoryStore) AppendImage(_ context.Context, boardID string, ref SectionRef, image Image) (Appended, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return Appended{}, fmt.Errorf("append image to board %s: %w", boardID, ErrNotFound)
	}
	idx, ok := ref.Resolve(board.Sections)
	if !ok {
		return Appended{}, fmt.Errorf("append image to board %s: section: %w", boardID, ErrNotFound)
	}
	section := &board.Sections[idx]
	if existing, ok := section.FindAsset(image.AssetRef); ok {
		return Appended{}, &DuplicateError{Existing: Appended{BoardID: boardID, SectionID: section.ID, Image: existing}}
	}

	stored := Image{
		ID:       image.ID,
		AssetRef: image.AssetRef,
		AddedAt:  s.now(),
	}
	if stored.ID == "" {
		stored.ID = util.NewID("img")
	}
	section.Images = append(section.Images, stored)
	return Appended{BoardID: boardID, SectionID: section.ID, Image: stored}, nil
}

func (s *MemoryStore) IncrementBoardViews(_ context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return fmt.Errorf("increment board views %s: %w", boardID, ErrNotFound)
	}
	board.ViewCount++
	return nil
}

func (s *MemoryStore) IncrementSectionViews(_ context.Context, boardID, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, err := s.sectionLocked(boardID, sectionID)
	if err != nil {
		return fmt.Errorf("increment section views: %w", err)
	}
	section.ViewCount++
	return nil
}

func (s *MemoryStore) IncrementImageDownloads(_ context.Context, boardID, sectionID, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, err := s.sectionLocked(boardID, sectionID)
	if err != nil {
		return fmt.Errorf("increment image downloads: %w", err)
	}
	for i := range section.Images {
		if section.Images[i].ID == imageID {
			section.Images[i].DownloadCount++
			return nil
		}
	}
	return fmt.Errorf("increment image downloads %s: %w", imageID, ErrNotFound)
}

func (s *MemoryStore) sectionLocked(boardID, sectionID string) (*Section, error) {
	board, ok := s.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	idx, ok := SectionRef{ID: sectionID}.Resolve(board.Sections)
	if !ok {
		return nil, fmt.Errorf("section %s: %w", sectionID, ErrNotFound)
	}
	return &board.Sections[idx], nil
}
