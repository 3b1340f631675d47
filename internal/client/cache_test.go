package client

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/api"
)

func intPtr(v int) *int { return &v }

func sampleBoard() api.Board {
	return api.Board{
		SchemaVersion: api.SchemaVersion,
		ID:            "brd_1",
		Title:         "Spring",
		Sections: []api.Section{
			{ID: "sec_a", Title: "Florals", Images: []api.Image{{ID: "img_1", AssetRef: "a"}}},
			{ID: "sec_b", Title: "Venue", Images: []api.Image{}},
		},
	}
}

func appended(sectionID string, index *int, ref string) Mutation {
	return Mutation{Kind: MutationAppend, Append: api.AppendResponse{
		BoardID:      "brd_1",
		SectionID:    sectionID,
		SectionIndex: index,
		Image:        api.Image{ID: "img_" + ref, AssetRef: ref},
	}}
}

func TestReconcileAppendPatchesOnlyTargetSection(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	assert.True(t, cache.Reconcile(appended("sec_b", nil, "b")))

	board := cache.Snapshot()
	require.Len(t, board.Sections, 2)
	assert.Len(t, board.Sections[0].Images, 1)
	require.Len(t, board.Sections[1].Images, 1)
	assert.Equal(t, "b", board.Sections[1].Images[0].AssetRef)
}

func TestReconcileAppendIsIdempotent(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	assert.True(t, cache.Reconcile(appended("sec_a", nil, "c")))
	assert.False(t, cache.Reconcile(appended("sec_a", nil, "c")))
	assert.False(t, cache.Reconcile(appended("sec_a", nil, "a")))

	assert.Len(t, cache.Snapshot().Sections[0].Images, 2)
}

func TestReconcileAppendFallsBackToIndex(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	assert.True(t, cache.Reconcile(appended("", intPtr(1), "b")))
	assert.Len(t, cache.Snapshot().Sections[1].Images, 1)

	assert.False(t, cache.Reconcile(appended("", intPtr(7), "y")))
	assert.False(t, cache.Reconcile(appended("sec_gone", nil, "y")))
}

func TestReconcileAppendWithUnknownSectionIDIgnoresIndex(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	// Another client replaced the sections; index 0 on the server is now a
	// section this cache has never seen.
	assert.False(t, cache.Reconcile(appended("sec_new", intPtr(0), "z")))

	board := cache.Snapshot()
	assert.Len(t, board.Sections[0].Images, 1)
	assert.Empty(t, board.Sections[1].Images)
}

func TestReconcileAppendAdoptsStoredImageID(t *testing.T) {
	board := sampleBoard()
	board.Sections[1].Images = []api.Image{{AssetRef: "b"}}
	cache := NewBoardCache(board)

	stored := appended("sec_b", nil, "b")
	stored.Append.Image.DownloadCount = 5
	assert.True(t, cache.Reconcile(stored))
	assert.False(t, cache.Reconcile(stored))

	images := cache.Snapshot().Sections[1].Images
	require.Len(t, images, 1)
	assert.Equal(t, "img_b", images[0].ID)
	assert.EqualValues(t, 5, images[0].DownloadCount)
}

func TestReconcileAppendIgnoresOtherBoards(t *testing.T) {
	cache := NewBoardCache(sampleBoard())
	m := appended("sec_a", nil, "c")
	m.Append.BoardID = "brd_2"

	assert.False(t, cache.Reconcile(m))
	assert.Len(t, cache.Snapshot().Sections[0].Images, 1)
}

func TestReconcileAppendNeverShrinksSections(t *testing.T) {
	cache := NewBoardCache(sampleBoard())
	require.True(t, cache.Reconcile(appended("sec_b", nil, "b")))

	// A second append result whose own board view predates the first must
	// not remove it.
	stale := appended("sec_a", nil, "c")
	staleBoard := sampleBoard()
	stale.Append.Board = &staleBoard
	require.True(t, cache.Reconcile(stale))

	board := cache.Snapshot()
	assert.Len(t, board.Sections[0].Images, 2)
	assert.Len(t, board.Sections[1].Images, 1)
}

func TestReconcileReplaceAndRenameAdoptServerState(t *testing.T) {
	cache := NewBoardCache(sampleBoard())
	require.True(t, cache.Reconcile(appended("sec_b", nil, "b")))

	replaced := sampleBoard()
	replaced.Sections = replaced.Sections[:1]
	assert.True(t, cache.Reconcile(Mutation{Kind: MutationReplace, Board: replaced}))
	assert.Len(t, cache.Snapshot().Sections, 1)

	renamed := cache.Snapshot()
	renamed.Title = "Summer"
	assert.True(t, cache.Reconcile(Mutation{Kind: MutationRename, Board: renamed}))
	assert.False(t, cache.Reconcile(Mutation{Kind: MutationRename, Board: renamed}))
	assert.Equal(t, "Summer", cache.Snapshot().Title)

	other := sampleBoard()
	other.ID = "brd_2"
	assert.False(t, cache.Reconcile(Mutation{Kind: MutationReplace, Board: other}))
	assert.False(t, cache.Reconcile(Mutation{Kind: "reorder"}))
}

func TestSnapshotIsACopy(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	snap := cache.Snapshot()
	snap.Sections[0].Images[0].AssetRef = "mutated"
	snap.Sections = append(snap.Sections, api.Section{ID: "sec_c"})

	fresh := cache.Snapshot()
	assert.Len(t, fresh.Sections, 2)
	assert.Equal(t, "a", fresh.Sections[0].Images[0].AssetRef)
}

func TestReconcileConcurrentAppends(t *testing.T) {
	cache := NewBoardCache(sampleBoard())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sectionID := "sec_a"
			if i%2 == 1 {
				sectionID = "sec_b"
			}
			cache.Reconcile(appended(sectionID, nil, fmt.Sprintf("asset-%d", i)))
		}(i)
	}
	wg.Wait()

	board := cache.Snapshot()
	assert.Len(t, board.Sections[0].Images, 11)
	assert.Len(t, board.Sections[1].Images, 10)
}
