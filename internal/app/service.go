package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/analytics"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/api"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/assets"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/config"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/metrics"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/search"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/util"
)

const (
	maxTitleLength    = 200
	maxDownloadsLimit = 200
)

type dataStore interface {
	ListBoards(context.Context) ([]store.Board, error)
	GetBoard(context.Context, string) (store.Board, error)
	InsertBoard(context.Context, store.Board) (store.Board, error)
	DeleteBoard(context.Context, string) error
	RenameBoard(context.Context, string, string) (store.Board, error)
	ReplaceSections(context.Context, string, []store.Section) (store.Board, error)
	AppendImage(context.Context, string, store.SectionRef, store.Image) (store.Appended, error)
	IncrementBoardViews(context.Context, string) error
	IncrementSectionViews(context.Context, string, string) error
	IncrementImageDownloads(context.Context, string, string, string) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexBoard(store.Board)
	DeleteBoard(string)
}

type analyticsCache interface {
	Generation(context.Context) (int64, error)
	GetJSON(context.Context, int64, string, any) (bool, error)
	SetJSON(context.Context, int64, string, any) error
	Invalidate(context.Context) error
	Ping(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	search   searchIndex
	cache    analyticsCache
	assets   assets.Uploader
	validate *validator.Validate
}

// New wires the board service. searchService may be nil, in which case
// search scans the store directly.
func New(cfg config.Config, boards dataStore, searchService *search.Service) *Service {
	if searchService == nil {
		searchService = search.NewService(nil, search.NewFallback(boards))
	}
	return &Service{
		cfg:      cfg,
		store:    boards,
		search:   searchService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UseCache enables the analytics snapshot cache.
func (s *Service) UseCache(cache analyticsCache) {
	s.cache = cache
}

// UseAssets enables image uploads.
func (s *Service) UseAssets(uploader assets.Uploader) {
	s.assets = uploader
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache checks the analytics cache. configured is false when caching is
// disabled.
func (s *Service) PingCache(ctx context.Context) (configured bool, err error) {
	if s.cache == nil {
		return false, nil
	}
	return true, s.cache.Ping(ctx)
}

func (s *Service) ListBoards(ctx context.Context) ([]api.Board, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromStoreBoards(boards), nil
}

func (s *Service) GetBoard(ctx context.Context, boardID string) (api.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return api.Board{}, err
	}
	return api.FromStoreBoard(board), nil
}

func (s *Service) CreateBoard(ctx context.Context, req api.CreateBoardRequest) (api.Board, error) {
	if err := s.validateStruct(req); err != nil {
		return api.Board{}, err
	}
	title, err := normalizeTitle(req.Title, "title")
	if err != nil {
		return api.Board{}, err
	}
	if err := validateSections(req.Sections); err != nil {
		return api.Board{}, err
	}

	board, err := s.store.InsertBoard(ctx, store.Board{
		Title:    title,
		Sections: api.ToStoreSections(req.Sections),
	})
	if err != nil {
		return api.Board{}, err
	}
	s.afterMutation(ctx, board)
	log.WithFields(log.Fields{"board_id": board.ID, "sections": len(board.Sections)}).Info("board created")
	return api.FromStoreBoard(board), nil
}

func (s *Service) DeleteBoard(ctx context.Context, boardID string) error {
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	s.search.DeleteBoard(boardID)
	s.invalidateAnalytics(ctx)
	log.WithField("board_id", boardID).Info("board deleted")
	return nil
}

func (s *Service) RenameBoard(ctx context.Context, boardID, rawTitle string) (api.Board, error) {
	title, err := normalizeTitle(rawTitle, "title")
	if err != nil {
		return api.Board{}, err
	}
	board, err := s.store.RenameBoard(ctx, boardID, title)
	if err != nil {
		return api.Board{}, err
	}
	s.afterMutation(ctx, board)
	return api.FromStoreBoard(board), nil
}

// ReplaceSections overwrites the section list of a board. Last writer wins:
// an image appended after the caller read its copy of the board is dropped
// unless the caller's sections include it.
func (s *Service) ReplaceSections(ctx context.Context, boardID string, sections []api.SectionInput) (api.Board, error) {
	if sections == nil {
		sections = []api.SectionInput{}
	}
	if err := s.validateStruct(struct {
		Sections []api.SectionInput `validate:"dive"`
	}{sections}); err != nil {
		return api.Board{}, err
	}
	if err := validateSections(sections); err != nil {
		return api.Board{}, err
	}

	board, err := s.store.ReplaceSections(ctx, boardID, api.ToStoreSections(sections))
	if err != nil {
		return api.Board{}, err
	}
	metrics.ObserveReplace()
	s.afterMutation(ctx, board)
	return api.FromStoreBoard(board), nil
}

// AppendImage adds one image to one section without touching the rest of
// the board. A repeated asset in the same section is rejected with a
// DUPLICATE_IMAGE conflict, which callers treat as already applied.
func (s *Service) AppendImage(ctx context.Context, boardID string, req api.AppendRequest, withBoard bool) (api.AppendResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return api.AppendResponse{}, err
	}
	target := req.Target()
	if target.ID == "" && target.Index == nil {
		return api.AppendResponse{}, validationError("sectionId or sectionIndex is required", nil)
	}
	assetRef := req.Image.Ref()
	if assetRef == "" {
		return api.AppendResponse{}, validationError("image.assetRef is required", nil)
	}

	appended, err := s.store.AppendImage(ctx, boardID, target, store.Image{
		ID:       util.NewID("img"),
		AssetRef: assetRef,
	})
	switch {
	case err == nil:
		metrics.ObserveAppend(metrics.AppendApplied)
	case errors.Is(err, store.ErrConflict):
		metrics.ObserveAppend(metrics.AppendDuplicate)
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			return api.AppendResponse{}, duplicateImageError(assetRef, dup.Existing.SectionID, target.Index, &dup.Existing.Image)
		}
		return api.AppendResponse{}, duplicateImageError(assetRef, target.ID, target.Index, nil)
	case errors.Is(err, store.ErrNotFound):
		metrics.ObserveAppend(metrics.AppendNotFound)
		return api.AppendResponse{}, err
	default:
		metrics.ObserveAppend(metrics.AppendFailed)
		return api.AppendResponse{}, err
	}

	s.invalidateAnalytics(ctx)
	resp := api.AppendResponse{
		BoardID:      appended.BoardID,
		SectionID:    appended.SectionID,
		SectionIndex: target.Index,
		Image:        api.FromStoreImage(appended.Image),
	}
	if withBoard {
		board, err := s.store.GetBoard(ctx, boardID)
		if err != nil {
			return api.AppendResponse{}, fmt.Errorf("reload board after append: %w", err)
		}
		wire := api.FromStoreBoard(board)
		resp.Board = &wire
	}
	return resp, nil
}

func (s *Service) ViewRanking(ctx context.Context, query, rawOrder string) (api.ViewRankingResponse, error) {
	order := analytics.ParseOrder(rawOrder)
	query = strings.TrimSpace(query)
	key := fmt.Sprintf("views:%s:%s", order, strings.ToLower(query))

	var cached api.ViewRankingResponse
	gen, hit := s.cachedSnapshot(ctx, key, &cached)
	if hit {
		return cached, nil
	}

	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return api.ViewRankingResponse{}, err
	}
	resp := api.ViewRankingResponse{
		Order: string(order),
		Query: query,
		Rows:  analytics.RankViews(boards, query, order),
	}
	s.storeSnapshot(ctx, gen, key, resp)
	return resp, nil
}

func (s *Service) TopDownloads(ctx context.Context, limit int) (api.TopDownloadsResponse, error) {
	if limit <= 0 {
		limit = s.cfg.TopDownloadsLimit
	}
	if limit <= 0 {
		limit = analytics.DefaultTopN
	}
	if limit > maxDownloadsLimit {
		limit = maxDownloadsLimit
	}
	key := fmt.Sprintf("downloads:%d", limit)

	var cached api.TopDownloadsResponse
	gen, hit := s.cachedSnapshot(ctx, key, &cached)
	if hit {
		return cached, nil
	}

	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return api.TopDownloadsResponse{}, err
	}
	resp := api.TopDownloadsResponse{Limit: limit, Rows: analytics.TopDownloads(boards, limit)}
	s.storeSnapshot(ctx, gen, key, resp)
	return resp, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	switch q.FilterType {
	case "", search.ResultBoard, search.ResultSection:
	default:
		return search.Response{}, validationError("type must be board or section", nil)
	}
	return s.search.Search(ctx, q), nil
}

// Tracking counters are written straight to the store. Cached analytics
// catch up when their TTL expires.

func (s *Service) RecordBoardView(ctx context.Context, boardID string) error {
	if err := s.store.IncrementBoardViews(ctx, boardID); err != nil {
		return err
	}
	metrics.ObserveTrack("board_view")
	return nil
}

func (s *Service) RecordSectionView(ctx context.Context, boardID, sectionID string) error {
	if err := s.store.IncrementSectionViews(ctx, boardID, sectionID); err != nil {
		return err
	}
	metrics.ObserveTrack("section_view")
	return nil
}

func (s *Service) RecordImageDownload(ctx context.Context, boardID, sectionID, imageID string) error {
	if err := s.store.IncrementImageDownloads(ctx, boardID, sectionID, imageID); err != nil {
		return err
	}
	metrics.ObserveTrack("image_download")
	return nil
}

func (s *Service) UploadAsset(ctx context.Context, upload assets.Upload) (api.AssetResponse, error) {
	if s.assets == nil {
		return api.AssetResponse{}, domainError(http.StatusServiceUnavailable, CodeAssetsUnavailable, "Asset storage is not configured", nil)
	}
	stored, err := s.assets.Upload(ctx, upload)
	switch {
	case errors.Is(err, assets.ErrTooLarge):
		return api.AssetResponse{}, domainError(http.StatusRequestEntityTooLarge, CodeAssetTooLarge, err.Error(), nil)
	case errors.Is(err, assets.ErrEmpty), errors.Is(err, assets.ErrUnsupportedType):
		return api.AssetResponse{}, validationError(err.Error(), nil)
	case err != nil:
		return api.AssetResponse{}, err
	}
	log.WithFields(log.Fields{"asset_ref": stored.AssetRef, "size": stored.Size}).Info("asset uploaded")
	return api.AssetResponse{AssetRef: stored.AssetRef, ContentType: stored.ContentType, Size: stored.Size}, nil
}

func (s *Service) afterMutation(ctx context.Context, board store.Board) {
	s.search.IndexBoard(board)
	s.invalidateAnalytics(ctx)
}

func (s *Service) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("analytics cache invalidate failed")
	}
}

// snapshotGen is the cache generation an analytics read started under.
// ok is false when the generation could not be read; nothing is stored then.
type snapshotGen struct {
	gen int64
	ok  bool
}

// cachedSnapshot pins the cache generation before the store is read and
// looks key up under it.
func (s *Service) cachedSnapshot(ctx context.Context, key string, dst any) (snapshotGen, bool) {
	if s.cache == nil {
		return snapshotGen{}, false
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("analytics cache read failed")
		return snapshotGen{}, false
	}
	pinned := snapshotGen{gen: gen, ok: true}
	found, err := s.cache.GetJSON(ctx, gen, key, dst)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("analytics cache read failed")
		return pinned, false
	}
	return pinned, found
}

func (s *Service) storeSnapshot(ctx context.Context, pinned snapshotGen, key string, value any) {
	if s.cache == nil || !pinned.ok {
		return
	}
	if err := s.cache.SetJSON(ctx, pinned.gen, key, value); err != nil {
		log.WithError(err).WithField("key", key).Warn("analytics cache write failed")
	}
}

func (s *Service) validateStruct(value any) error {
	err := s.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return validationError(err.Error(), nil)
	}
	details := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
		})
	}
	return validationError("Request failed validation", details)
}

func normalizeTitle(raw, field string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", validationError(field+" is required", nil)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", validationError(fmt.Sprintf("%s must be at most %d characters", field, maxTitleLength), nil)
	}
	return title, nil
}

// validateSections rejects blank titles, images without an asset, a
// repeated asset within one section and a repeated section id.
func validateSections(sections []api.SectionInput) error {
	sectionIDs := map[string]struct{}{}
	for i, section := range sections {
		if _, err := normalizeTitle(section.Title, fmt.Sprintf("sections[%d].title", i)); err != nil {
			return err
		}
		if id := strings.TrimSpace(section.ID); id != "" {
			if _, dup := sectionIDs[id]; dup {
				return validationError("section id repeated", map[string]any{"sectionId": id})
			}
			sectionIDs[id] = struct{}{}
		}
		refs := map[string]struct{}{}
		for j, image := range section.Images {
			ref := image.Ref()
			if ref == "" {
				return validationError(fmt.Sprintf("sections[%d].images[%d].assetRef is required", i, j), nil)
			}
			if _, dup := refs[ref]; dup {
				return validationError("image repeated within section", map[string]any{
					"section":  i,
					"assetRef": ref,
				})
			}
			refs[ref] = struct{}{}
		}
	}
	return nil
}
