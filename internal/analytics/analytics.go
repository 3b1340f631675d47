// Package analytics derives view rankings, download rankings and search
// results from a list of boards. Every function is pure: inputs are never
// mutated and equal counts keep their input order.
package analytics

import (
	"sort"
	"strings"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

const DefaultTopN = 24

type Order string

const (
	Descending Order = "desc"
	Ascending  Order = "asc"
)

// ParseOrder accepts "asc" and "desc" in any case. Anything else is
// Descending.
func ParseOrder(raw string) Order {
	if strings.EqualFold(strings.TrimSpace(raw), string(Ascending)) {
		return Ascending
	}
	return Descending
}

type RowKind string

const (
	RowBoard   RowKind = "board"
	RowSection RowKind = "section"
)

// ViewRow is one line of the view ranking. Section rows carry the id and
// title of the board they belong to.
type ViewRow struct {
	Kind         RowKind `json:"kind"`
	BoardID      string  `json:"boardId"`
	BoardTitle   string  `json:"boardTitle"`
	SectionID    string  `json:"sectionId,omitempty"`
	SectionTitle string  `json:"sectionTitle,omitempty"`
	ViewCount    int64   `json:"viewCount"`
}

type DownloadRow struct {
	BoardID       string `json:"boardId"`
	BoardTitle    string `json:"boardTitle"`
	SectionID     string `json:"sectionId"`
	SectionTitle  string `json:"sectionTitle"`
	ImageID       string `json:"imageId"`
	AssetRef      string `json:"assetRef"`
	DownloadCount int64  `json:"downloadCount"`
}

// Filter keeps the boards whose title, or any of whose section titles,
// contains q (case-insensitive). A board matched by its own title keeps all
// sections; a board matched only through sections keeps just those. An
// empty query returns every board unchanged.
func Filter(boards []store.Board, q string) []store.Board {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]store.Board, 0, len(boards))
	for _, board := range boards {
		if needle == "" || contains(board.Title, needle) {
			out = append(out, board.Clone())
			continue
		}
		var matched []store.Section
		for _, section := range board.Sections {
			if contains(section.Title, needle) {
				matched = append(matched, section.Clone())
			}
		}
		if len(matched) == 0 {
			continue
		}
		filtered := board.Clone()
		filtered.Sections = matched
		out = append(out, filtered)
	}
	return out
}

// RankViews filters boards by q and returns one row per board, each
// followed by its sections. Boards and the sections under each board are
// sorted by view count in the given order.
func RankViews(boards []store.Board, q string, order Order) []ViewRow {
	filtered := Filter(boards, q)
	sortStable(filtered, func(b store.Board) int64 { return b.ViewCount }, order)

	rows := make([]ViewRow, 0, len(filtered))
	for _, board := range filtered {
		rows = append(rows, ViewRow{
			Kind:       RowBoard,
			BoardID:    board.ID,
			BoardTitle: board.Title,
			ViewCount:  board.ViewCount,
		})
		sections := append([]store.Section(nil), board.Sections...)
		sortStable(sections, func(s store.Section) int64 { return s.ViewCount }, order)
		for _, section := range sections {
			rows = append(rows, ViewRow{
				Kind:         RowSection,
				BoardID:      board.ID,
				BoardTitle:   board.Title,
				SectionID:    section.ID,
				SectionTitle: section.Title,
				ViewCount:    section.ViewCount,
			})
		}
	}
	return rows
}

// TopDownloads flattens every image of every board and returns the n most
// downloaded. n <= 0 means DefaultTopN.
func TopDownloads(boards []store.Board, n int) []DownloadRow {
	if n <= 0 {
		n = DefaultTopN
	}
	var rows []DownloadRow
	for _, board := range boards {
		for _, section := range board.Sections {
			for _, image := range section.Images {
				rows = append(rows, DownloadRow{
					BoardID:       board.ID,
					BoardTitle:    board.Title,
					SectionID:     section.ID,
					SectionTitle:  section.Title,
					ImageID:       image.ID,
					AssetRef:      image.AssetRef,
					DownloadCount: image.DownloadCount,
				})
			}
		}
	}
	sortStable(rows, func(r DownloadRow) int64 { return r.DownloadCount }, Descending)
	if len(rows) > n {
		rows = rows[:n]
	}
	if rows == nil {
		rows = []DownloadRow{}
	}
	return rows
}

func sortStable[T any](items []T, count func(T) int64, order Order) {
	sort.SliceStable(items, func(i, j int) bool {
		if order == Ascending {
			return count(items[i]) < count(items[j])
		}
		return count(items[i]) > count(items[j])
	})
}

func contains(title, needle string) bool {
	return strings.Contains(strings.ToLower(title), needle)
}
