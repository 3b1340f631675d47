package search

import (
	"strings"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard   ResultType = "board"
	ResultSection ResultType = "section"
)

// Result is a single search hit returned to the caller. Section hits carry
// the board they belong to.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet,omitempty"`
	BoardID    string     `json:"boardId"`
	BoardTitle string     `json:"boardTitle"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

const defaultLimit = 20

// BoardRecord is the data we index for a board. Section titles travel with
// the board so a replace re-indexes the whole tree in one upsert.
type BoardRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	SectionIDs    []string `json:"sectionIds"`
	SectionTitles []string `json:"sectionTitles"`
	UpdatedAt     int64    `json:"updatedAt"`
}

func RecordFromBoard(board store.Board) BoardRecord {
	record := BoardRecord{
		ID:            board.ID,
		Title:         board.Title,
		SectionIDs:    make([]string, 0, len(board.Sections)),
		SectionTitles: make([]string, 0, len(board.Sections)),
		UpdatedAt:     board.UpdatedAt.Unix(),
	}
	for _, section := range board.Sections {
		record.SectionIDs = append(record.SectionIDs, section.ID)
		record.SectionTitles = append(record.SectionTitles, section.Title)
	}
	return record
}

// expand turns one matched board into its result rows: the board itself and
// every section whose own title contains the query.
func expand(record BoardRecord, text string, filter ResultType) []Result {
	needle := strings.ToLower(strings.TrimSpace(text))
	var results []Result
	if filter == "" || filter == ResultBoard {
		results = append(results, Result{
			Type:       ResultBoard,
			ID:         record.ID,
			Title:      record.Title,
			BoardID:    record.ID,
			BoardTitle: record.Title,
		})
	}
	if filter != "" && filter != ResultSection {
		return results
	}
	for i, title := range record.SectionTitles {
		if i >= len(record.SectionIDs) {
			break
		}
		if needle != "" && !strings.Contains(strings.ToLower(title), needle) {
			continue
		}
		results = append(results, Result{
			Type:       ResultSection,
			ID:         record.SectionIDs[i],
			Title:      title,
			BoardID:    record.ID,
			BoardTitle: record.Title,
		})
	}
	return results
}

func page(results []Result, q Query) []Result {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
