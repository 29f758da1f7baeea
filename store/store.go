package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mathfe/grader/store")

// Store provides manual-SQL access to grading sessions.
type Store struct {
	DB *DB
}

func New(db *DB) *Store {
	return &Store{DB: db}
}

// File is one uploaded script.
type File struct {
	SessionID  string    `db:"session_id" json:"-"`
	Idx        int       `db:"idx" json:"file_idx"`
	Name       string    `db:"name" json:"name"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
	PageCount  int       `db:"page_count" json:"page_count"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	Content    []byte    `db:"content" json:"-"`
}

type Session struct {
	ID        string    `db:"id" json:"session_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Store) ensureDB() (*sqlx.DB, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	return s.DB.DB, nil
}

func (s *Store) span(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "store."+name, trace.WithAttributes(attribute.String("grader.session_id", sessionID)))
}

// dbErr maps driver errors onto apperr values; notFound is used for sql.ErrNoRows.
func dbErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(err, apperr.ErrNotFound, notFound)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Wrap(err, apperr.ErrDatabase, "")
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return dbErr(err, "")
	}
	return dbErr(tx.Commit(), "")
}

func (s *Store) CreateSession(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.span(ctx, "CreateSession", id)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stmt := s.DB.Rebind("INSERT INTO sessions(id, created_at, updated_at) VALUES(?, ?, ?)")
	if _, err := db.ExecContext(ctx, stmt, id, now, now); err != nil {
		return nil, dbErr(err, "")
	}
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.span(ctx, "GetSession", id)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var sess Session
	stmt := s.DB.Rebind("SELECT id, created_at, updated_at FROM sessions WHERE id = ?")
	if err := db.GetContext(ctx, &sess, stmt, id); err != nil {
		return nil, dbErr(err, "session not found")
	}
	return &sess, nil
}

// TouchSession records activity on a session.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("UPDATE sessions SET updated_at = ? WHERE id = ?")
	_, err = db.ExecContext(ctx, stmt, time.Now().UTC(), id)
	return dbErr(err, "")
}

func (s *Store) ListSessionIDs(ctx context.Context) ([]string, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := db.SelectContext(ctx, &ids, "SELECT id FROM sessions ORDER BY created_at"); err != nil {
		return nil, dbErr(err, "")
	}
	return ids, nil
}

// DeleteSession removes a session and everything graded under it.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	ctx, span := s.span(ctx, "DeleteSession", id)
	defer span.End()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"completions", "student_numbers", "schemes", "rubric_items", "files"} {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE session_id = ?"), id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sessions WHERE id = ?"), id)
		return err
	})
}

// ReplaceFiles swaps the session's uploads for files. Rubric items, student
// numbers and completions refer to file indexes, so they are reset as well;
// studentNums seeds the new mapping.
func (s *Store) ReplaceFiles(ctx context.Context, sessionID string, files []File, studentNums map[int]string) error {
	ctx, span := s.span(ctx, "ReplaceFiles", sessionID)
	defer span.End()
	span.SetAttributes(attribute.Int("grader.files", len(files)))
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"completions", "student_numbers", "rubric_items", "files"} {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE session_id = ?"), sessionID); err != nil {
				return err
			}
		}
		insertFile := tx.Rebind(`INSERT INTO files(session_id, idx, name, uploaded_at, page_count, size_bytes, content)
			VALUES(?, ?, ?, ?, ?, ?, ?)`)
		for _, f := range files {
			if _, err := tx.ExecContext(ctx, insertFile, sessionID, f.Idx, f.Name, f.UploadedAt.UTC(), f.PageCount, int64(len(f.Content)), f.Content); err != nil {
				return err
			}
		}
		insertNum := tx.Rebind("INSERT INTO student_numbers(session_id, file_idx, student_number) VALUES(?, ?, ?)")
		for idx, num := range studentNums {
			if num == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, insertNum, sessionID, idx, num); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFiles returns file metadata without contents.
func (s *Store) ListFiles(ctx context.Context, sessionID string) ([]File, error) {
	ctx, span := s.span(ctx, "ListFiles", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	files := []File{}
	stmt := s.DB.Rebind(`SELECT session_id, idx, name, uploaded_at, page_count, size_bytes
		FROM files WHERE session_id = ? ORDER BY idx`)
	if err := db.SelectContext(ctx, &files, stmt, sessionID); err != nil {
		return nil, dbErr(err, "")
	}
	return files, nil
}

// GetFile returns a file including its PDF contents.
func (s *Store) GetFile(ctx context.Context, sessionID string, idx int) (*File, error) {
	ctx, span := s.span(ctx, "GetFile", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var f File
	stmt := s.DB.Rebind(`SELECT session_id, idx, name, uploaded_at, page_count, size_bytes, content
		FROM files WHERE session_id = ? AND idx = ?`)
	if err := db.GetContext(ctx, &f, stmt, sessionID, idx); err != nil {
		return nil, dbErr(err, fmt.Sprintf("file %d not found", idx))
	}
	return &f, nil
}

// FileExists is GetFile without loading the contents.
func (s *Store) FileExists(ctx context.Context, sessionID string, idx int) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	var n int
	stmt := s.DB.Rebind("SELECT COUNT(*) FROM files WHERE session_id = ? AND idx = ?")
	if err := db.GetContext(ctx, &n, stmt, sessionID, idx); err != nil {
		return dbErr(err, "")
	}
	if n == 0 {
		return apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("file %d not found", idx))
	}
	return nil
}

const rubricColumns = "id, file_idx, question_num, marks, description"

func (s *Store) AddRubricItem(ctx context.Context, sessionID string, item grading.RubricItem) (grading.RubricItem, error) {
	ctx, span := s.span(ctx, "AddRubricItem", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return item, err
	}
	stmt := s.DB.Rebind(`INSERT INTO rubric_items(session_id, file_idx, question_num, marks, description, created_at)
		VALUES(?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	if err := db.GetContext(ctx, &id, stmt, sessionID, item.FileIdx, item.QuestionNum, item.Marks, item.Description, time.Now().UTC()); err != nil {
		return item, dbErr(err, "")
	}
	item.ItemIdx = id
	return item, nil
}

// ListRubricItems returns every item of the session ordered by creation.
func (s *Store) ListRubricItems(ctx context.Context, sessionID string) ([]grading.RubricItem, error) {
	ctx, span := s.span(ctx, "ListRubricItems", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	items := []grading.RubricItem{}
	stmt := s.DB.Rebind("SELECT " + rubricColumns + " FROM rubric_items WHERE session_id = ? ORDER BY id")
	if err := db.SelectContext(ctx, &items, stmt, sessionID); err != nil {
		return nil, dbErr(err, "")
	}
	return items, nil
}

func (s *Store) ListQuestionItems(ctx context.Context, sessionID string, fileIdx, question int) ([]grading.RubricItem, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	items := []grading.RubricItem{}
	stmt := s.DB.Rebind("SELECT " + rubricColumns + ` FROM rubric_items
		WHERE session_id = ? AND file_idx = ? AND question_num = ? ORDER BY id`)
	if err := db.SelectContext(ctx, &items, stmt, sessionID, fileIdx, question); err != nil {
		return nil, dbErr(err, "")
	}
	return items, nil
}

// GetRubricItem looks an item up by its index within a file and question.
func (s *Store) GetRubricItem(ctx context.Context, sessionID string, fileIdx, question int, itemIdx int64) (grading.RubricItem, error) {
	db, err := s.ensureDB()
	if err != nil {
		return grading.RubricItem{}, err
	}
	var item grading.RubricItem
	stmt := s.DB.Rebind("SELECT " + rubricColumns + ` FROM rubric_items
		WHERE session_id = ? AND file_idx = ? AND question_num = ? AND id = ?`)
	if err := db.GetContext(ctx, &item, stmt, sessionID, fileIdx, question, itemIdx); err != nil {
		return item, dbErr(err, fmt.Sprintf("rubric item %d not found", itemIdx))
	}
	return item, nil
}

func (s *Store) DeleteRubricItem(ctx context.Context, sessionID string, fileIdx, question int, itemIdx int64) error {
	ctx, span := s.span(ctx, "DeleteRubricItem", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("DELETE FROM rubric_items WHERE session_id = ? AND file_idx = ? AND question_num = ? AND id = ?")
	res, err := db.ExecContext(ctx, stmt, sessionID, fileIdx, question, itemIdx)
	if err != nil {
		return dbErr(err, "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("rubric item %d not found", itemIdx))
	}
	return nil
}

// UpdateRubricItems writes marks and descriptions of items in one
// transaction. Items that no longer exist are skipped.
func (s *Store) UpdateRubricItems(ctx context.Context, sessionID string, items []grading.RubricItem) (int64, error) {
	ctx, span := s.span(ctx, "UpdateRubricItems", sessionID)
	defer span.End()
	var updated int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt := tx.Rebind(`UPDATE rubric_items SET marks = ?, description = ?
			WHERE session_id = ? AND id = ? AND file_idx = ? AND question_num = ?`)
		for _, it := range items {
			res, err := tx.ExecContext(ctx, stmt, it.Marks, it.Description, sessionID, it.ItemIdx, it.FileIdx, it.QuestionNum)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			updated += n
		}
		return nil
	})
	return updated, err
}

type schemeRow struct {
	Total     int    `db:"total"`
	Questions string `db:"questions"`
}

// GetScheme returns apperr.ErrNotFound when the session has no scheme yet.
func (s *Store) GetScheme(ctx context.Context, sessionID string) (grading.Scheme, error) {
	db, err := s.ensureDB()
	if err != nil {
		return grading.Scheme{}, err
	}
	var row schemeRow
	stmt := s.DB.Rebind("SELECT total, questions FROM schemes WHERE session_id = ?")
	if err := db.GetContext(ctx, &row, stmt, sessionID); err != nil {
		return grading.Scheme{}, dbErr(err, "no marking scheme defined")
	}
	scheme := grading.Scheme{Total: row.Total, Questions: map[int]int{}}
	if err := json.Unmarshal([]byte(row.Questions), &scheme.Questions); err != nil {
		return grading.Scheme{}, apperr.Wrap(err, apperr.ErrDatabase, "decode scheme")
	}
	return scheme, nil
}

func (s *Store) PutScheme(ctx context.Context, sessionID string, scheme grading.Scheme) error {
	ctx, span := s.span(ctx, "PutScheme", sessionID)
	defer span.End()
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	questions, err := json.Marshal(scheme.Questions)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "encode scheme")
	}
	stmt := s.DB.Rebind(`INSERT INTO schemes(session_id, total, questions, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET total = excluded.total, questions = excluded.questions, updated_at = excluded.updated_at`)
	_, err = db.ExecContext(ctx, stmt, sessionID, scheme.Total, string(questions), time.Now().UTC())
	return dbErr(err, "")
}

func (s *Store) SetStudentNumber(ctx context.Context, sessionID string, fileIdx int, studentNum string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind(`INSERT INTO student_numbers(session_id, file_idx, student_number) VALUES(?, ?, ?)
		ON CONFLICT(session_id, file_idx) DO UPDATE SET student_number = excluded.student_number`)
	_, err = db.ExecContext(ctx, stmt, sessionID, fileIdx, studentNum)
	return dbErr(err, "")
}

// StudentNumbers maps file index to student number.
func (s *Store) StudentNumbers(ctx context.Context, sessionID string) (map[int]string, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		FileIdx       int    `db:"file_idx"`
		StudentNumber string `db:"student_number"`
	}
	stmt := s.DB.Rebind("SELECT file_idx, student_number FROM student_numbers WHERE session_id = ?")
	if err := db.SelectContext(ctx, &rows, stmt, sessionID); err != nil {
		return nil, dbErr(err, "")
	}
	out := make(map[int]string, len(rows))
	for _, r := range rows {
		out[r.FileIdx] = r.StudentNumber
	}
	return out, nil
}

// MarkCompleted is idempotent; the first completion time is kept.
func (s *Store) MarkCompleted(ctx context.Context, sessionID string, fileIdx int) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind(`INSERT INTO completions(session_id, file_idx, completed_at) VALUES(?, ?, ?)
		ON CONFLICT(session_id, file_idx) DO NOTHING`)
	_, err = db.ExecContext(ctx, stmt, sessionID, fileIdx, time.Now().UTC())
	return dbErr(err, "")
}

// Completed maps completed file indexes to their completion time.
func (s *Store) Completed(ctx context.Context, sessionID string) (map[int]time.Time, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		FileIdx     int       `db:"file_idx"`
		CompletedAt time.Time `db:"completed_at"`
	}
	stmt := s.DB.Rebind("SELECT file_idx, completed_at FROM completions WHERE session_id = ?")
	if err := db.SelectContext(ctx, &rows, stmt, sessionID); err != nil {
		return nil, dbErr(err, "")
	}
	out := make(map[int]time.Time, len(rows))
	for _, r := range rows {
		out[r.FileIdx] = r.CompletedAt
	}
	return out, nil
}
