package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/util"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the method set shared by the memory and Postgres drivers.
type Store interface {
	ListBoards(context.Context) ([]Board, error)
	GetBoard(context.Context, string) (Board, error)
	InsertBoard(context.Context, Board) (Board, error)
	DeleteBoard(context.Context, string) error
	RenameBoard(context.Context, string, string) (Board, error)
	ReplaceSections(context.Context, string, []Section) (Board, error)
	AppendImage(context.Context, string, SectionRef, Image) (Appended, error)
	IncrementBoardViews(context.Context, string) error
	IncrementSectionViews(context.Context, string, string) error
	IncrementImageDownloads(context.Context, string, string, string) error
	Ping(context.Context) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Board is the aggregate root. Sections are kept in display order.
type Board struct {
	ID        string
	Title     string
	Sections  []Section
	ViewCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Section struct {
	ID        string
	Title     string
	Images    []Image
	ViewCount int64
}

type Image struct {
	ID            string
	AssetRef      string
	DownloadCount int64
	AddedAt       time.Time
}

// SectionRef addresses the target section of an append. ID wins over Index.
type SectionRef struct {
	ID    string
	Index *int
}

// Appended is the outcome of a targeted append.
type Appended struct {
	BoardID   string
	SectionID string
	Image     Image
}

func (b Board) Clone() Board {
	out := b
	if b.Sections != nil {
		out.Sections = make([]Section, len(b.Sections))
		for i, section := range b.Sections {
			out.Sections[i] = section.Clone()
		}
	}
	return out
}

func (s Section) Clone() Section {
	out := s
	if s.Images != nil {
		out.Images = append([]Image(nil), s.Images...)
	}
	return out
}

// FindAsset returns the stored image for assetRef, if any.
func (s Section) FindAsset(assetRef string) (Image, bool) {
	for _, image := range s.Images {
		if image.AssetRef == assetRef {
			return image, true
		}
	}
	return Image{}, false
}

// DuplicateError is returned by AppendImage when the target section already
// holds the asset. Existing is the stored image. It matches ErrConflict.
type DuplicateError struct {
	Existing Appended
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("append image %s to section %s: %v", e.Existing.Image.AssetRef, e.Existing.SectionID, ErrConflict)
}

func (e *DuplicateError) Unwrap() error { return ErrConflict }

// Resolve returns the position of the referenced section in sections.
func (r SectionRef) Resolve(sections []Section) (int, bool) {
	if r.ID != "" {
		for i, section := range sections {
			if section.ID == r.ID {
				return i, true
			}
		}
		return -1, false
	}
	if r.Index == nil || *r.Index < 0 || *r.Index >= len(sections) {
		return -1, false
	}
	return *r.Index, true
}

// counterIndex remembers the stored counters of a board so a structural
// replace can carry them over to surviving ids. assets maps section id to
// asset ref for images the caller sends without a usable id.
type counterIndex struct {
	sections map[string]int64
	images   map[string]Image
	assets   map[string]map[string]Image
}

func newCounterIndex() counterIndex {
	return counterIndex{
		sections: map[string]int64{},
		images:   map[string]Image{},
		assets:   map[string]map[string]Image{},
	}
}

func indexCounters(sections []Section) counterIndex {
	idx := newCounterIndex()
	for _, section := range sections {
		idx.sections[section.ID] = section.ViewCount
		byAsset := make(map[string]Image, len(section.Images))
		for _, image := range section.Images {
			idx.images[image.ID] = image
			byAsset[image.AssetRef] = image
		}
		idx.assets[section.ID] = byAsset
	}
	return idx
}

// storedImage finds the stored image an incoming one stands for: by id
// first, then by asset ref within the same surviving section.
func (idx counterIndex) storedImage(sectionID string, image Image, taken map[string]struct{}) (Image, bool) {
	if stored, ok := idx.images[image.ID]; ok && !seen(taken, image.ID) {
		return stored, true
	}
	if stored, ok := idx.assets[sectionID][image.AssetRef]; ok && !seen(taken, stored.ID) {
		return stored, true
	}
	return Image{}, false
}

// prepareReplacement assigns ids and counters to the sections of a
// structural replace. Ids unknown to the board, or repeated in the
// payload, are replaced with fresh ones; counters always come from the
// store, never from the caller. An image without a known id keeps the
// stored image of the same asset in the same section.
func prepareReplacement(sections []Section, existing counterIndex, now time.Time) []Section {
	out := make([]Section, len(sections))
	seenSections := map[string]struct{}{}
	seenImages := map[string]struct{}{}
	for i, section := range sections {
		next := Section{Title: section.Title, Images: make([]Image, 0, len(section.Images))}
		if count, ok := existing.sections[section.ID]; ok && !seen(seenSections, section.ID) {
			next.ID = section.ID
			next.ViewCount = count
		} else {
			next.ID = util.NewID("sec")
		}
		seenSections[next.ID] = struct{}{}

		for _, image := range section.Images {
			img := Image{AssetRef: image.AssetRef, AddedAt: now}
			if stored, ok := existing.storedImage(next.ID, image, seenImages); ok {
				img.ID = stored.ID
				img.DownloadCount = stored.DownloadCount
				img.AddedAt = stored.AddedAt
			} else {
				img.ID = util.NewID("img")
			}
			seenImages[img.ID] = struct{}{}
			next.Images = append(next.Images, img)
		}
		out[i] = next
	}
	return out
}

func seen(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
