// Package client talks to the inspo board API and keeps a reconciled local
// copy of the board being edited.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/api"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/search"
)

// APIError is a non-2xx response from the API. Details is the raw
// details object, if the server sent one.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends one request and decodes a 2xx body into out. Any other status
// comes back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string          `json:"code"`
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cannot decode %s %s response: %w", method, path, err)
	}
	return nil
}

func boardPath(boardID string) string {
	return "/api/boards/" + url.PathEscape(boardID)
}

func (c *Client) ListBoards(ctx context.Context) ([]api.Board, error) {
	var resp api.BoardListResponse
	if err := c.do(ctx, http.MethodGet, "/api/boards", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Boards, nil
}

func (c *Client) GetBoard(ctx context.Context, boardID string) (api.Board, error) {
	var resp api.BoardResponse
	err := c.do(ctx, http.MethodGet, boardPath(boardID), nil, &resp)
	return resp.Board, err
}

func (c *Client) CreateBoard(ctx context.Context, req api.CreateBoardRequest) (api.Board, error) {
	var resp api.BoardResponse
	err := c.do(ctx, http.MethodPost, "/api/boards", req, &resp)
	return resp.Board, err
}

func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	return c.do(ctx, http.MethodDelete, boardPath(boardID), nil, nil)
}

func (c *Client) RenameBoard(ctx context.Context, boardID, title string) (api.Board, error) {
	var resp api.BoardResponse
	err := c.do(ctx, http.MethodPatch, boardPath(boardID), map[string]any{"title": title}, &resp)
	return resp.Board, err
}

// ReplaceSections overwrites the board's sections. Images appended by other
// clients since sections was read are lost.
func (c *Client) ReplaceSections(ctx context.Context, boardID string, sections []api.SectionInput) (api.Board, error) {
	if sections == nil {
		sections = []api.SectionInput{}
	}
	var resp api.BoardResponse
	err := c.do(ctx, http.MethodPatch, boardPath(boardID), map[string]any{"sections": sections}, &resp)
	return resp.Board, err
}

// AppendImage adds one image to one section. A DUPLICATE_IMAGE conflict
// means the image is already stored, so it is returned as a successful
// result with Duplicate set and, when the server reports it, the stored
// image.
func (c *Client) AppendImage(ctx context.Context, boardID string, req api.AppendRequest) (api.AppendResponse, error) {
	var resp api.AppendResponse
	err := c.do(ctx, http.MethodPatch, boardPath(boardID), map[string]any{"append": req}, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Code == "DUPLICATE_IMAGE" {
		return duplicateResponse(boardID, req, apiErr.Details), nil
	}
	if err != nil {
		return api.AppendResponse{}, err
	}
	if resp.SectionIndex == nil {
		resp.SectionIndex = req.SectionIndex
	}
	return resp, nil
}

func duplicateResponse(boardID string, req api.AppendRequest, raw json.RawMessage) api.AppendResponse {
	resp := api.AppendResponse{
		BoardID:      boardID,
		SectionID:    strings.TrimSpace(req.SectionID),
		SectionIndex: req.SectionIndex,
		Image:        api.Image{ID: req.Image.ID, AssetRef: req.Image.Ref()},
		Duplicate:    true,
	}
	var details api.DuplicateImageDetails
	if len(raw) == 0 || json.Unmarshal(raw, &details) != nil {
		return resp
	}
	if details.SectionID != "" {
		resp.SectionID = details.SectionID
	}
	if details.Image != nil && details.Image.ID != "" {
		resp.Image = *details.Image
	}
	return resp
}

func (c *Client) ViewRanking(ctx context.Context, query, order string) (api.ViewRankingResponse, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if order != "" {
		params.Set("order", order)
	}
	var resp api.ViewRankingResponse
	err := c.do(ctx, http.MethodGet, withQuery("/api/analytics/views", params), nil, &resp)
	return resp, err
}

func (c *Client) TopDownloads(ctx context.Context, limit int) (api.TopDownloadsResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp api.TopDownloadsResponse
	err := c.do(ctx, http.MethodGet, withQuery("/api/analytics/downloads", params), nil, &resp)
	return resp, err
}

func (c *Client) Search(ctx context.Context, q search.Query) (search.Response, error) {
	params := url.Values{"q": {q.Text}}
	if q.FilterType != "" {
		params.Set("type", string(q.FilterType))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	var resp search.Response
	err := c.do(ctx, http.MethodGet, withQuery("/api/search", params), nil, &resp)
	return resp, err
}

func (c *Client) TrackBoardView(ctx context.Context, boardID string) error {
	path := fmt.Sprintf("/api/track/boards/%s/view", url.PathEscape(boardID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) TrackSectionView(ctx context.Context, boardID, sectionID string) error {
	path := fmt.Sprintf("/api/track/boards/%s/sections/%s/view", url.PathEscape(boardID), url.PathEscape(sectionID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) TrackImageDownload(ctx context.Context, boardID, sectionID, imageID string) error {
	path := fmt.Sprintf("/api/track/boards/%s/sections/%s/images/%s/download",
		url.PathEscape(boardID), url.PathEscape(sectionID), url.PathEscape(imageID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
