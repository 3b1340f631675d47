package api

import (
	"strings"
	"time"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/analytics"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// Request DTOs

type CreateBoardRequest struct {
	Title    string         `json:"title" validate:"required,max=200"`
	Sections []SectionInput `json:"sections,omitempty" validate:"omitempty,dive"`
}

// PatchBoardRequest carries exactly one of a rename, a structural replace
// or a targeted append.
type PatchBoardRequest struct {
	Title    *string        `json:"title,omitempty" validate:"omitempty,max=200"`
	Sections []SectionInput `json:"sections" validate:"omitempty,dive"`
	Append   *AppendRequest `json:"append,omitempty"`
}

// Operations reports how many mutations the patch asks for.
func (p PatchBoardRequest) Operations() int {
	n := 0
	if p.Title != nil {
		n++
	}
	if p.Sections != nil {
		n++
	}
	if p.Append != nil {
		n++
	}
	return n
}

// SectionInput is one section of a create or replace body. Counters sent by
// the client are accepted so a fetched board can be echoed back, but the
// server never stores them.
type SectionInput struct {
	ID        string       `json:"id,omitempty" validate:"max=64"`
	Title     string       `json:"title" validate:"required,max=200"`
	Images    []ImageInput `json:"images,omitempty" validate:"omitempty,dive"`
	ViewCount *int64       `json:"viewCount,omitempty"`
}

// ImageInput accepts the legacy "public_id" key as an alias of assetRef.
type ImageInput struct {
	ID            string     `json:"id,omitempty" validate:"max=64"`
	AssetRef      string     `json:"assetRef,omitempty" validate:"max=512"`
	PublicID      string     `json:"public_id,omitempty" validate:"max=512"`
	DownloadCount *int64     `json:"downloadCount,omitempty"`
	AddedAt       *time.Time `json:"addedAt,omitempty"`
}

func (i ImageInput) Ref() string {
	if ref := strings.TrimSpace(i.AssetRef); ref != "" {
		return ref
	}
	return strings.TrimSpace(i.PublicID)
}

// AppendRequest targets a section by id or, for older clients, by index.
// The id wins when both are set.
type AppendRequest struct {
	SectionID    string     `json:"sectionId,omitempty" validate:"max=64"`
	SectionIndex *int       `json:"sectionIndex,omitempty" validate:"omitempty,min=0"`
	Image        ImageInput `json:"image"`
}

func (a AppendRequest) Target() store.SectionRef {
	return store.SectionRef{ID: strings.TrimSpace(a.SectionID), Index: a.SectionIndex}
}

// ToStoreSections converts request sections into store sections. Counters
// are dropped; the store decides them.
func ToStoreSections(inputs []SectionInput) []store.Section {
	out := make([]store.Section, 0, len(inputs))
	for _, input := range inputs {
		section := store.Section{
			ID:     strings.TrimSpace(input.ID),
			Title:  strings.TrimSpace(input.Title),
			Images: make([]store.Image, 0, len(input.Images)),
		}
		for _, image := range input.Images {
			section.Images = append(section.Images, store.Image{
				ID:       strings.TrimSpace(image.ID),
				AssetRef: image.Ref(),
			})
		}
		out = append(out, section)
	}
	return out
}

// Response DTOs

type BoardResponse struct {
	Board Board `json:"board"`
}

type BoardListResponse struct {
	Boards []Board `json:"boards"`
}

// AppendResponse is the result of a targeted append. Board is only set when
// the caller asked for it. Duplicate is set by the client when the server
// rejected the append because the asset was already in the section.
type AppendResponse struct {
	BoardID      string `json:"boardId"`
	SectionID    string `json:"sectionId"`
	SectionIndex *int   `json:"sectionIndex,omitempty"`
	Image        Image  `json:"image"`
	Board        *Board `json:"board,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
}

type ViewRankingResponse struct {
	Order string              `json:"order"`
	Query string              `json:"query"`
	Rows  []analytics.ViewRow `json:"rows"`
}

type TopDownloadsResponse struct {
	Limit int                     `json:"limit"`
	Rows  []analytics.DownloadRow `json:"rows"`
}

type AssetResponse struct {
	AssetRef    string `json:"assetRef"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// DuplicateImageDetails is the Details payload of a DUPLICATE_IMAGE
// conflict. Image is the stored entry for the asset.
type DuplicateImageDetails struct {
	AssetRef     string `json:"assetRef"`
	SectionID    string `json:"sectionId"`
	SectionIndex *int   `json:"sectionIndex"`
	Image        *Image `json:"image,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
