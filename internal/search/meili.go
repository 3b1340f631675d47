package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"
)

const idxBoards = "inspo_boards"

// Meili implements board search via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the board index.
// The returned value is usable even when the first health check fails; a
// background loop flips it healthy once the server answers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.WithError(err).WithField("url", url).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxBoards,
		PrimaryKey: "id",
	}); err != nil {
		log.WithError(err).WithField("index", idxBoards).Debug("search: create index (may already exist)")
	}

	index := m.client.Index(idxBoards)
	searchable := []string{"title", "sectionTitles"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.WithError(err).WithField("index", idxBoards).Warn("search: update searchable attrs")
	}
	sortable := []string{"updatedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.WithError(err).WithField("index", idxBoards).Warn("search: update sortable attrs")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Info("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search matches boards by title or section title and expands every hit
// into its board row plus the sections whose titles contain the query.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxBoards,
			Query:    q.Text,
			Limit:    int64(limit + offset),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			results = append(results, expand(hitToRecord(hit), q.Text, q.FilterType)...)
		}
	}
	return page(results, q), len(results), nil
}

func hitToRecord(hit meili.Hit) BoardRecord {
	return BoardRecord{
		ID:            decodeString(hit, "id"),
		Title:         decodeString(hit, "title"),
		SectionIDs:    decodeStrings(hit, "sectionIds"),
		SectionTitles: decodeStrings(hit, "sectionTitles"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}

// IndexBoard adds or replaces a board in the search index.
func (m *Meili) IndexBoard(record BoardRecord) error {
	_, err := m.client.Index(idxBoards).AddDocuments([]BoardRecord{record}, nil)
	return err
}

// DeleteBoard removes a board from the search index.
func (m *Meili) DeleteBoard(id string) error {
	_, err := m.client.Index(idxBoards).DeleteDocument(id, nil)
	return err
}

// IndexBoards bulk-indexes boards.
func (m *Meili) IndexBoards(records []BoardRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxBoards).AddDocuments(records, nil)
	return err
}
