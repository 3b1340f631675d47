package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/util"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) ListBoards(ctx context.Context) ([]Board, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin list boards: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	boards, err := loadBoards(ctx, tx, "")
	if err != nil {
		return nil, err
	}
	return boards, tx.Commit()
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return Board{}, fmt.Errorf("begin get board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	board, err := loadBoard(ctx, tx, boardID)
	if err != nil {
		return Board{}, err
	}
	return board, tx.Commit()
}

func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) (Board, error) {
	if board.ID == "" {
		board.ID = util.NewID("brd")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Board{}, fmt.Errorf("begin insert board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, board.ID, board.Title, now); err != nil {
		if sqlState(err) == sqlStateUniqueViolation {
			return Board{}, fmt.Errorf("insert board %s: %w", board.ID, ErrConflict)
		}
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	sections := prepareReplacement(board.Sections, newCounterIndex(), now)
	if err := insertSections(ctx, tx, board.ID, sections); err != nil {
		return Board{}, err
	}

	stored, err := loadBoard(ctx, tx, board.ID)
	if err != nil {
		return Board{}, err
	}
	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit insert board: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return requireAffected(result, "delete board "+boardID)
}

func (s *PostgresStore) RenameBoard(ctx context.Context, boardID, title string) (Board, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE boards SET title=$2, updated_at=$3 WHERE id=$1`, boardID, title, s.now())
	if err != nil {
		return Board{}, fmt.Errorf("rename board: %w", err)
	}
	if err := requireAffected(result, "rename board "+boardID); err != nil {
		return Board{}, err
	}
	return s.GetBoard(ctx, boardID)
}

// ReplaceSections overwrites the whole section list of a board. It is
// last-writer-wins: images appended after the caller took its snapshot are
// removed together with the sections they belonged to.
func (s *PostgresStore) ReplaceSections(ctx context.Context, boardID string, sections []Section) (Board, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Board{}, fmt.Errorf("begin replace sections: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM boards WHERE id=$1 FOR UPDATE`, boardID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, fmt.Errorf("replace sections %s: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return Board{}, fmt.Errorf("lock board: %w", err)
	}

	current, err := loadSections(ctx, tx, boardID)
	if err != nil {
		return Board{}, err
	}
	now := s.now()
	next := prepareReplacement(sections, indexCounters(current[boardID]), now)

	if _, err := tx.ExecContext(ctx, `DELETE FROM board_sections WHERE board_id=$1`, boardID); err != nil {
		return Board{}, fmt.Errorf("clear sections: %w", err)
	}
	if err := insertSections(ctx, tx, boardID, next); err != nil {
		return Board{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE boards SET updated_at=$2 WHERE id=$1`, boardID, now); err != nil {
		return Board{}, fmt.Errorf("touch board: %w", err)
	}

	board, err := loadBoard(ctx, tx, boardID)
	if err != nil {
		return Board{}, err
	}
	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit replace sections: %w", err)
	}
	return board, nil
}

const appendBySectionID = `
	INSERT INTO section_images (id, section_id, asset_ref, added_at)
	SELECT $3, s.id, $4, $5
	FROM board_sections s
	WHERE s.board_id = $1 AND s.id = $2
	ON CONFLICT (section_id, asset_ref) DO NOTHING
	RETURNING id, section_id, asset_ref, download_count, added_at
`

const appendBySectionIndex = `
	INSERT INTO section_images (id, section_id, asset_ref, added_at)
	SELECT $3, s.id, $4, $5
	FROM (
		SELECT id FROM board_sections
		WHERE board_id = $1
		ORDER BY position
		OFFSET $2 LIMIT 1
	) s
	ON CONFLICT (section_id, asset_ref) DO NOTHING
	RETURNING id, section_id, asset_ref, download_count, added_at
`

// AppendImage adds one image to one section in a single INSERT statement.
// The section list of the board is never read back or rewritten, so
// concurrent appends to the same section all survive.
func (s *PostgresStore) AppendImage(ctx context.Context, boardID string, ref SectionRef, image Image) (Appended, error) {
	if image.ID == "" {
		image.ID = util.NewID("img")
	}
	query, target, err := appendQuery(ref)
	if err != nil {
		return Appended{}, err
	}

	var out Appended
	out.BoardID = boardID
	err = s.db.QueryRowContext(ctx, query, boardID, target, image.ID, image.AssetRef, s.now()).Scan(
		&out.Image.ID,
		&out.SectionID,
		&out.Image.AssetRef,
		&out.Image.DownloadCount,
		&out.Image.AddedAt,
	)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, sql.ErrNoRows):
		return Appended{}, s.classifyRejectedAppend(ctx, boardID, ref, image.AssetRef)
	case sqlState(err) == sqlStateForeignKeyViolation:
		return Appended{}, fmt.Errorf("append image to board %s: section removed: %w", boardID, ErrNotFound)
	default:
		return Appended{}, fmt.Errorf("append image: %w", err)
	}
}

func appendQuery(ref SectionRef) (string, any, error) {
	if ref.ID != "" {
		return appendBySectionID, ref.ID, nil
	}
	if ref.Index == nil || *ref.Index < 0 {
		return "", nil, fmt.Errorf("append image: section reference: %w", ErrNotFound)
	}
	return appendBySectionIndex, *ref.Index, nil
}

// classifyRejectedAppend tells a duplicate asset apart from a missing
// board or section after the insert produced no row. A duplicate carries
// the stored image.
func (s *PostgresStore) classifyRejectedAppend(ctx context.Context, boardID string, ref SectionRef, assetRef string) error {
	target := `SELECT id FROM board_sections WHERE board_id = $1 AND id = $2`
	var key any = ref.ID
	if ref.ID == "" {
		target = `SELECT id FROM board_sections WHERE board_id = $1 ORDER BY position OFFSET $2 LIMIT 1`
		key = *ref.Index
	}
	query := `
		SELECT s.id, i.id, i.download_count, i.added_at
		FROM (` + target + `) s
		LEFT JOIN section_images i ON i.section_id = s.id AND i.asset_ref = $3
	`

	var (
		sectionID string
		imageID   sql.NullString
		downloads sql.NullInt64
		addedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, boardID, key, assetRef).Scan(&sectionID, &imageID, &downloads, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append image to board %s: section: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("classify append: %w", err)
	}
	if imageID.Valid {
		return &DuplicateError{Existing: Appended{
			BoardID:   boardID,
			SectionID: sectionID,
			Image: Image{
				ID:            imageID.String,
				AssetRef:      assetRef,
				DownloadCount: downloads.Int64,
				AddedAt:       addedAt.Time,
			},
		}}
	}
	// The conflicting row vanished between the two statements.
	return fmt.Errorf("append image to section %s: changed concurrently: %w", sectionID, ErrNotFound)
}

func (s *PostgresStore) IncrementBoardViews(ctx context.Context, boardID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE boards SET view_count = view_count + 1 WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("increment board views: %w", err)
	}
	return requireAffected(result, "increment board views "+boardID)
}

func (s *PostgresStore) IncrementSectionViews(ctx context.Context, boardID, sectionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE board_sections SET view_count = view_count + 1
		WHERE board_id=$1 AND id=$2
	`, boardID, sectionID)
	if err != nil {
		return fmt.Errorf("increment section views: %w", err)
	}
	return requireAffected(result, "increment section views "+sectionID)
}

func (s *PostgresStore) IncrementImageDownloads(ctx context.Context, boardID, sectionID, imageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE section_images i SET download_count = i.download_count + 1
		FROM board_sections s
		WHERE i.section_id = s.id AND s.board_id=$1 AND s.id=$2 AND i.id=$3
	`, boardID, sectionID, imageID)
	if err != nil {
		return fmt.Errorf("increment image downloads: %w", err)
	}
	return requireAffected(result, "increment image downloads "+imageID)
}

func insertSections(ctx context.Context, tx *sql.Tx, boardID string, sections []Section) error {
	for position, section := range sections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_sections (id, board_id, position, title, view_count)
			VALUES ($1, $2, $3, $4, $5)
		`, section.ID, boardID, position, section.Title, section.ViewCount); err != nil {
			return fmt.Errorf("insert section %d: %w", position, err)
		}
		for _, image := range section.Images {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO section_images (id, section_id, asset_ref, download_count, added_at)
				VALUES ($1, $2, $3, $4, $5)
			`, image.ID, section.ID, image.AssetRef, image.DownloadCount, image.AddedAt); err != nil {
				if sqlState(err) == sqlStateUniqueViolation {
					return fmt.Errorf("insert image %s into section %d: %w", image.AssetRef, position, ErrConflict)
				}
				return fmt.Errorf("insert image into section %d: %w", position, err)
			}
		}
	}
	return nil
}

func loadBoard(ctx context.Context, q queryer, boardID string) (Board, error) {
	boards, err := loadBoards(ctx, q, boardID)
	if err != nil {
		return Board{}, err
	}
	if len(boards) == 0 {
		return Board{}, fmt.Errorf("get board %s: %w", boardID, ErrNotFound)
	}
	return boards[0], nil
}

// loadBoards reads boards newest first; an empty boardID loads all of them.
func loadBoards(ctx context.Context, q queryer, boardID string) ([]Board, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, view_count, created_at, updated_at
		FROM boards
		WHERE ($1 = '' OR id = $1)
		ORDER BY created_at DESC, id DESC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var item Board
		if err := rows.Scan(&item.ID, &item.Title, &item.ViewCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}

	sections, err := loadSections(ctx, q, boardID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Sections = sections[items[i].ID]
		if items[i].Sections == nil {
			items[i].Sections = []Section{}
		}
	}
	return items, nil
}

// loadSections returns sections grouped by board id, each with its images
// in insertion order.
func loadSections(ctx context.Context, q queryer, boardID string) (map[string][]Section, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, board_id, title, view_count
		FROM board_sections
		WHERE ($1 = '' OR board_id = $1)
		ORDER BY board_id, position
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	type location struct {
		boardID string
		index   int
	}
	grouped := map[string][]Section{}
	where := map[string]location{}
	for rows.Next() {
		var section Section
		var owner string
		if err := rows.Scan(&section.ID, &owner, &section.Title, &section.ViewCount); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		section.Images = []Image{}
		where[section.ID] = location{boardID: owner, index: len(grouped[owner])}
		grouped[owner] = append(grouped[owner], section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	imageRows, err := q.QueryContext(ctx, `
		SELECT i.id, i.section_id, i.asset_ref, i.download_count, i.added_at
		FROM section_images i
		JOIN board_sections s ON s.id = i.section_id
		WHERE ($1 = '' OR s.board_id = $1)
		ORDER BY i.seq
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer imageRows.Close()

	for imageRows.Next() {
		var image Image
		var sectionID string
		if err := imageRows.Scan(&image.ID, &sectionID, &image.AssetRef, &image.DownloadCount, &image.AddedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		loc, ok := where[sectionID]
		if !ok {
			continue
		}
		section := &grouped[loc.boardID][loc.index]
		section.Images = append(section.Images, image)
	}
	if err := imageRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return grouped, nil
}

func requireAffected(result sql.Result, action string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", action, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	return nil
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}
