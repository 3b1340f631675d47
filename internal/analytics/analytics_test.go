package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

func image(id string, downloads int64) store.Image {
	return store.Image{ID: id, AssetRef: "asset-" + id, DownloadCount: downloads}
}

func boardIDs(boards []store.Board) []string {
	ids := make([]string, 0, len(boards))
	for _, board := range boards {
		ids = append(ids, board.ID)
	}
	return ids
}

func sectionTitles(board store.Board) []string {
	titles := make([]string, 0, len(board.Sections))
	for _, section := range board.Sections {
		titles = append(titles, section.Title)
	}
	return titles
}

func TestTopDownloadsKeepsEncounterOrderOnTies(t *testing.T) {
	boards := []store.Board{{
		ID:    "b1",
		Title: "Spring",
		Sections: []store.Section{
			{ID: "s1", Title: "Florals", Images: []store.Image{image("X", 5), image("Y", 0)}},
			{ID: "s2", Title: "Venue", Images: []store.Image{image("Z", 5), image("W", 3)}},
		},
	}}

	rows := TopDownloads(boards, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, "X", rows[0].ImageID)
	assert.Equal(t, "Z", rows[1].ImageID)
	assert.Equal(t, "W", rows[2].ImageID)
	assert.Equal(t, "Spring", rows[1].BoardTitle)
	assert.Equal(t, "Venue", rows[1].SectionTitle)
}

func TestTopDownloadsDefaultsAndEmptyInput(t *testing.T) {
	assert.Empty(t, TopDownloads(nil, 5))
	assert.NotNil(t, TopDownloads(nil, 5))

	var images []store.Image
	for i := 0; i < DefaultTopN+6; i++ {
		images = append(images, image(string(rune('a'+i%26))+string(rune('A'+i/26)), int64(i)))
	}
	boards := []store.Board{{ID: "b", Sections: []store.Section{{ID: "s", Images: images}}}}

	rows := TopDownloads(boards, 0)
	require.Len(t, rows, DefaultTopN)
	assert.EqualValues(t, DefaultTopN+5, rows[0].DownloadCount)
}

func TestRankViewsInterleavesSectionsUnderBoards(t *testing.T) {
	boards := []store.Board{
		{ID: "b1", Title: "Spring", ViewCount: 1, Sections: []store.Section{
			{ID: "s1", Title: "Florals", ViewCount: 2},
			{ID: "s2", Title: "Venue", ViewCount: 9},
		}},
		{ID: "b2", Title: "Autumn", ViewCount: 4},
	}

	rows := RankViews(boards, "", Descending)
	require.Len(t, rows, 4)
	assert.Equal(t, ViewRow{Kind: RowBoard, BoardID: "b2", BoardTitle: "Autumn", ViewCount: 4}, rows[0])
	assert.Equal(t, RowBoard, rows[1].Kind)
	assert.Equal(t, "b1", rows[1].BoardID)
	assert.Equal(t, "s2", rows[2].SectionID)
	assert.Equal(t, "s1", rows[3].SectionID)
	assert.Equal(t, "Spring", rows[3].BoardTitle)
}

func TestViewOrderToggleIsAnInvolution(t *testing.T) {
	boards := []store.Board{
		{ID: "a", ViewCount: 3},
		{ID: "b", ViewCount: 1},
		{ID: "c", ViewCount: 3},
		{ID: "d", ViewCount: 2},
	}

	desc := rowBoardIDs(RankViews(boards, "", Descending))
	asc := rowBoardIDs(RankViews(boards, "", Ascending))
	assert.Equal(t, []string{"a", "c", "d", "b"}, desc)
	assert.Equal(t, []string{"b", "d", "a", "c"}, asc)

	// Re-sorting the ascending output descending restores the original
	// relative order of the tied boards.
	reordered := make([]store.Board, 0, len(asc))
	byID := map[string]store.Board{}
	for _, board := range boards {
		byID[board.ID] = board
	}
	for _, id := range asc {
		reordered = append(reordered, byID[id])
	}
	assert.Equal(t, desc, rowBoardIDs(RankViews(reordered, "", Descending)))

	distinct := []store.Board{{ID: "x", ViewCount: 1}, {ID: "y", ViewCount: 5}, {ID: "z", ViewCount: 3}}
	up := rowBoardIDs(RankViews(distinct, "", Ascending))
	down := rowBoardIDs(RankViews(distinct, "", Descending))
	require.Len(t, up, 3)
	for i := range up {
		assert.Equal(t, up[i], down[len(down)-1-i])
	}
}

func rowBoardIDs(rows []ViewRow) []string {
	var ids []string
	for _, row := range rows {
		if row.Kind == RowBoard {
			ids = append(ids, row.BoardID)
		}
	}
	return ids
}

func TestFilterScopesSectionsToMatches(t *testing.T) {
	boards := []store.Board{
		{ID: "spring", Title: "Spring", Sections: []store.Section{{Title: "Florals"}, {Title: "Venue"}}},
		{ID: "autumn", Title: "Autumn", Sections: []store.Section{{Title: "Florals"}}},
		{ID: "winter", Title: "Winter", Sections: []store.Section{{Title: "Cake"}}},
	}

	filtered := Filter(boards, "florals")
	require.Equal(t, []string{"spring", "autumn"}, boardIDs(filtered))
	assert.Equal(t, []string{"Florals"}, sectionTitles(filtered[0]))
	assert.Equal(t, []string{"Florals"}, sectionTitles(filtered[1]))

	// The input is left untouched.
	assert.Len(t, boards[0].Sections, 2)
}

func TestFilterTitleMatchKeepsAllSections(t *testing.T) {
	boards := []store.Board{
		{ID: "spring", Title: "Spring Garden", Sections: []store.Section{{Title: "Florals"}, {Title: "Venue"}}},
	}

	filtered := Filter(boards, "  GARDEN ")
	require.Len(t, filtered, 1)
	assert.Equal(t, []string{"Florals", "Venue"}, sectionTitles(filtered[0]))

	assert.Len(t, Filter(boards, ""), 1)
	assert.Empty(t, Filter(boards, "beach"))
}

func TestRankViewsAppliesFilter(t *testing.T) {
	boards := []store.Board{
		{ID: "spring", Title: "Spring", Sections: []store.Section{{ID: "f", Title: "Florals"}, {ID: "v", Title: "Venue"}}},
		{ID: "autumn", Title: "Autumn"},
	}

	rows := RankViews(boards, "venue", Descending)
	require.Len(t, rows, 2)
	assert.Equal(t, "spring", rows[0].BoardID)
	assert.Equal(t, "v", rows[1].SectionID)
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, Ascending, ParseOrder("ASC"))
	assert.Equal(t, Descending, ParseOrder("desc"))
	assert.Equal(t, Descending, ParseOrder(""))
	assert.Equal(t, Descending, ParseOrder("sideways"))
}
