// Package api holds the versioned JSON schema shared by the HTTP server and
// the board client.
package api

import (
	"time"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// SchemaVersion is bumped whenever the board document changes shape.
const SchemaVersion = 1

type Board struct {
	SchemaVersion int       `json:"schemaVersion"`
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Sections      []Section `json:"sections"`
	ViewCount     int64     `json:"viewCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Section struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Images    []Image `json:"images"`
	ViewCount int64   `json:"viewCount"`
}

type Image struct {
	ID            string    `json:"id"`
	AssetRef      string    `json:"assetRef"`
	DownloadCount int64     `json:"downloadCount"`
	AddedAt       time.Time `json:"addedAt"`
}

func FromStoreBoard(b store.Board) Board {
	out := Board{
		SchemaVersion: SchemaVersion,
		ID:            b.ID,
		Title:         b.Title,
		Sections:      make([]Section, 0, len(b.Sections)),
		ViewCount:     b.ViewCount,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, section := range b.Sections {
		out.Sections = append(out.Sections, FromStoreSection(section))
	}
	return out
}

func FromStoreSection(s store.Section) Section {
	out := Section{
		ID:        s.ID,
		Title:     s.Title,
		Images:    make([]Image, 0, len(s.Images)),
		ViewCount: s.ViewCount,
	}
	for _, image := range s.Images {
		out.Images = append(out.Images, FromStoreImage(image))
	}
	return out
}

func FromStoreImage(i store.Image) Image {
	return Image{
		ID:            i.ID,
		AssetRef:      i.AssetRef,
		DownloadCount: i.DownloadCount,
		AddedAt:       i.AddedAt,
	}
}

func FromStoreBoards(boards []store.Board) []Board {
	out := make([]Board, 0, len(boards))
	for _, board := range boards {
		out = append(out, FromStoreBoard(board))
	}
	return out
}

// Inputs returns the board's sections in request form, ready to be edited
// and sent back as a structural replace.
func (b Board) Inputs() []SectionInput {
	out := make([]SectionInput, 0, len(b.Sections))
	for _, section := range b.Sections {
		input := SectionInput{ID: section.ID, Title: section.Title, Images: make([]ImageInput, 0, len(section.Images))}
		for _, image := range section.Images {
			input.Images = append(input.Images, ImageInput{ID: image.ID, AssetRef: image.AssetRef})
		}
		out = append(out, input)
	}
	return out
}
