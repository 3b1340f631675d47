package client

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/api"
)

type MutationKind string

const (
	MutationAppend  MutationKind = "append"
	MutationReplace MutationKind = "replace"
	MutationRename  MutationKind = "rename"
)

// Mutation is the server's answer to one write, fed to BoardCache.Reconcile.
// Append is set for MutationAppend and Board for the other kinds.
type Mutation struct {
	Kind   MutationKind
	Append api.AppendResponse
	Board  api.Board
}

// BoardCache holds the board currently open for editing. Every write result
// goes through Reconcile so images appended locally are never dropped by a
// later append response.
type BoardCache struct {
	mu    sync.Mutex
	board api.Board
}

func NewBoardCache(board api.Board) *BoardCache {
	return &BoardCache{board: cloneBoard(board)}
}

// Snapshot returns a copy that callers may modify freely.
func (c *BoardCache) Snapshot() api.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneBoard(c.board)
}

// Load swaps in a freshly fetched board.
func (c *BoardCache) Load(board api.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.board = cloneBoard(board)
}

// Reconcile merges a mutation result into the cached board and reports
// whether anything changed.
//
// An append only patches the target section's image list, and only when
// the asset is not there yet or is cached without its stored id. Replace and rename results are last writer
// wins, so the cache adopts what the server wrote.
func (c *BoardCache) Reconcile(m Mutation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m.Kind {
	case MutationAppend:
		return c.mergeAppend(m.Append)
	case MutationReplace:
		if m.Board.ID != c.board.ID {
			return false
		}
		c.board.Sections = cloneSections(m.Board.Sections)
		c.board.UpdatedAt = m.Board.UpdatedAt
		return true
	case MutationRename:
		if m.Board.ID != c.board.ID {
			return false
		}
		changed := c.board.Title != m.Board.Title
		c.board.Title = m.Board.Title
		c.board.UpdatedAt = m.Board.UpdatedAt
		return changed
	default:
		return false
	}
}

func (c *BoardCache) mergeAppend(res api.AppendResponse) bool {
	if res.BoardID != c.board.ID || res.Image.AssetRef == "" {
		return false
	}
	idx := c.locateSection(res.SectionID, res.SectionIndex)
	if idx < 0 {
		return false
	}
	section := &c.board.Sections[idx]
	for i, image := range section.Images {
		if image.AssetRef != res.Image.AssetRef {
			continue
		}
		if image.ID == "" && res.Image.ID != "" {
			section.Images[i] = res.Image
			return true
		}
		return false
	}
	section.Images = append(section.Images, res.Image)
	return true
}

// locateSection finds the section by id. The request index is only used
// when the response carries no id; an id the cache does not know means the
// cache is behind and needs a Load.
func (c *BoardCache) locateSection(sectionID string, index *int) int {
	if sectionID != "" {
		for i, section := range c.board.Sections {
			if section.ID == sectionID {
				return i
			}
		}
		return -1
	}
	if index != nil && *index >= 0 && *index < len(c.board.Sections) {
		return *index
	}
	return -1
}

// OpenBoard fetches a board into a new cache.
func (c *Client) OpenBoard(ctx context.Context, boardID string) (*BoardCache, error) {
	board, err := c.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return NewBoardCache(board), nil
}

// AppendImages sends the appends concurrently and reconciles each result
// into cache as it arrives. The first failure cancels the rest; results
// already merged stay merged.
func (c *Client) AppendImages(ctx context.Context, cache *BoardCache, reqs []api.AppendRequest) ([]api.AppendResponse, error) {
	boardID := cache.Snapshot().ID
	results := make([]api.AppendResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := c.AppendImage(gctx, boardID, req)
			if err != nil {
				return err
			}
			cache.Reconcile(Mutation{Kind: MutationAppend, Append: res})
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReplaceSectionsCached writes sections and adopts the server's result.
func (c *Client) ReplaceSectionsCached(ctx context.Context, cache *BoardCache, sections []api.SectionInput) (api.Board, error) {
	board, err := c.ReplaceSections(ctx, cache.Snapshot().ID, sections)
	if err != nil {
		return api.Board{}, err
	}
	cache.Reconcile(Mutation{Kind: MutationReplace, Board: board})
	return board, nil
}

// RenameCached renames the cached board and adopts the new title.
func (c *Client) RenameCached(ctx context.Context, cache *BoardCache, title string) (api.Board, error) {
	board, err := c.RenameBoard(ctx, cache.Snapshot().ID, title)
	if err != nil {
		return api.Board{}, err
	}
	cache.Reconcile(Mutation{Kind: MutationRename, Board: board})
	return board, nil
}

func cloneBoard(b api.Board) api.Board {
	out := b
	out.Sections = cloneSections(b.Sections)
	return out
}

func cloneSections(sections []api.Section) []api.Section {
	out := make([]api.Section, len(sections))
	for i, section := range sections {
		out[i] = section
		out[i].Images = append([]api.Image{}, section.Images...)
	}
	return out
}
