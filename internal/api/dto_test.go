package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

func TestFromStoreBoardCarriesSchemaVersion(t *testing.T) {
	added := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	board := FromStoreBoard(store.Board{
		ID:    "brd_1",
		Title: "Spring",
		Sections: []store.Section{{
			ID:     "sec_1",
			Title:  "Florals",
			Images: []store.Image{{ID: "img_1", AssetRef: "a", DownloadCount: 2, AddedAt: added}},
		}, {ID: "sec_2", Title: "Venue"}},
	})

	assert.Equal(t, SchemaVersion, board.SchemaVersion)
	require.Len(t, board.Sections, 2)
	assert.Equal(t, "a", board.Sections[0].Images[0].AssetRef)
	assert.NotNil(t, board.Sections[1].Images)

	raw, err := json.Marshal(board)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"schemaVersion":1`)
	assert.Contains(t, string(raw), `"images":[]`)
}

func TestImageInputAcceptsLegacyPublicID(t *testing.T) {
	var input ImageInput
	require.NoError(t, json.Unmarshal([]byte(`{"public_id":"  legacy/abc "}`), &input))
	assert.Equal(t, "legacy/abc", input.Ref())

	require.NoError(t, json.Unmarshal([]byte(`{"assetRef":"new","public_id":"old"}`), &input))
	assert.Equal(t, "new", input.Ref())
}

func TestPatchOperations(t *testing.T) {
	var patch PatchBoardRequest
	require.NoError(t, json.Unmarshal([]byte(`{"sections":[]}`), &patch))
	assert.Equal(t, 1, patch.Operations())
	assert.NotNil(t, patch.Sections)

	title := "Summer"
	patch = PatchBoardRequest{Title: &title, Append: &AppendRequest{}}
	assert.Equal(t, 2, patch.Operations())
	assert.Zero(t, PatchBoardRequest{}.Operations())

	raw, err := json.Marshal(PatchBoardRequest{Sections: []SectionInput{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections":[]}`, string(raw))
}

func TestToStoreSectionsDropsCounters(t *testing.T) {
	views := int64(40)
	downloads := int64(9)
	sections := ToStoreSections([]SectionInput{{
		ID:        " sec_1 ",
		Title:     " Florals ",
		ViewCount: &views,
		Images:    []ImageInput{{ID: "img_1", PublicID: "a", DownloadCount: &downloads}},
	}})

	require.Len(t, sections, 1)
	assert.Equal(t, "sec_1", sections[0].ID)
	assert.Equal(t, "Florals", sections[0].Title)
	assert.Zero(t, sections[0].ViewCount)
	assert.Equal(t, store.Image{ID: "img_1", AssetRef: "a"}, sections[0].Images[0])
}

func TestBoardInputsRoundTrip(t *testing.T) {
	board := Board{Sections: []Section{{ID: "sec_1", Title: "Florals", Images: []Image{{ID: "img_1", AssetRef: "a"}}}}}
	inputs := board.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "sec_1", inputs[0].ID)
	assert.Equal(t, "a", inputs[0].Images[0].Ref())
}

func TestAppendTarget(t *testing.T) {
	idx := 2
	ref := AppendRequest{SectionID: " sec_9 ", SectionIndex: &idx}.Target()
	assert.Equal(t, "sec_9", ref.ID)
	require.NotNil(t, ref.Index)
	assert.Equal(t, 2, *ref.Index)
}
