package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/sqlite"
	"log/slog"
	"time"
)

// AssessmentRepository persists [models.AssessmentRecord] values. Writes are guarded by an optimistic version check.
type AssessmentRepository struct {
	readOnly  *sqlx.DB
	readWrite *sqlx.DB
	logger    *slog.Logger
}

func NewAssessmentRepository(db *sqlite.Database, logger *slog.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		readOnly:  sqlx.NewDb(db.ReadOnly, "sqlite3"),
		readWrite: sqlx.NewDb(db.ReadWrite, "sqlite3"),
		logger:    logger.With(slog.String("source", "AssessmentRepository")),
	}
}

type assessmentRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	AssessmentType    string         `db:"assessment_type"`
	BankVersion       string         `db:"bank_version"`
	State             string         `db:"state"`
	Version           int64          `db:"version"`
	RespondentContext string         `db:"respondent_context"`
	Classification    sql.NullString `db:"classification"`
	Insights          sql.NullString `db:"insights"`
	InsightsDegraded  bool           `db:"insights_degraded"`
	CreatedAt         string         `db:"created_at"`
	SubmittedAt       sql.NullString `db:"submitted_at"`
	FinalizedAt       sql.NullString `db:"finalized_at"`
}

type responseRow struct {
	AssessmentID   string `db:"assessment_id"`
	QuestionID     string `db:"question_id"`
	RawValue       int    `db:"raw_value"`
	ResponseTimeMs int64  `db:"response_time_ms"`
	Category       string `db:"category"`
	Kind           string `db:"kind"`
	AnsweredAt     string `db:"answered_at"`
	Position       int    `db:"position"`
}

const assessmentColumns = `id, user_id, assessment_type, bank_version, state, version, respondent_context,
       classification, insights, insights_degraded, created_at, submitted_at, finalized_at`

// Create inserts a new record. The stored version starts from record.Version.
func (r *AssessmentRepository) Create(ctx context.Context, record models.AssessmentRecord) error {
	row, err := toRow(record)
	if err != nil {
		return errors.Wrap(err, "map record", slog.String("assessment_id", record.ID))
	}

	tx, err := r.readWrite.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer r.rollback(ctx, tx)

	stmt := `INSERT INTO assessments (` + assessmentColumns + `)
VALUES (:id, :user_id, :assessment_type, :bank_version, :state, :version, :respondent_context,
        :classification, :insights, :insights_degraded, :created_at, :submitted_at, :finalized_at)`
	if _, err = tx.NamedExecContext(ctx, stmt, row); err != nil {
		return errors.Wrap(err, "insert assessment", slog.String("assessment_id", record.ID))
	}
	if err = insertResponses(ctx, tx, record.ID, record.Responses); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Get returns the record with the given id or [models.ErrNotFound]. The assessment row and its responses are read
// in the same read-only transaction.
func (r *AssessmentRepository) Get(ctx context.Context, id string) (models.AssessmentRecord, error) {
	stmt := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = ?`
	record, err := r.read(ctx, stmt, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AssessmentRecord{}, errors.Wrap(models.ErrNotFound, "get assessment",
				slog.String("assessment_id", id))
		}
		return models.AssessmentRecord{}, errors.Wrap(err, "get assessment", slog.String("assessment_id", id))
	}
	return record, nil
}

// Update replaces the stored record if its version still equals record.Version and returns the record with the
// incremented version. A concurrent writer that got there first causes [models.ErrStaleVersion].
func (r *AssessmentRepository) Update(
	ctx context.Context,
	record models.AssessmentRecord,
) (models.AssessmentRecord, error) {
	row, err := toRow(record)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "map record", slog.String("assessment_id", record.ID))
	}

	tx, err := r.readWrite.BeginTxx(ctx, nil)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "begin transaction")
	}
	defer r.rollback(ctx, tx)

	stmt := `UPDATE assessments
SET state              = :state,
    version            = :version + 1,
    respondent_context = :respondent_context,
    classification     = :classification,
    insights           = :insights,
    insights_degraded  = :insights_degraded,
    submitted_at       = :submitted_at,
    finalized_at       = :finalized_at
WHERE id = :id AND version = :version`
	result, err := tx.NamedExecContext(ctx, stmt, row)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "update assessment", slog.String("assessment_id", record.ID))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM assessments WHERE id = ?)`,
			record.ID); err != nil {
			return models.AssessmentRecord{}, errors.Wrap(err, "check existence")
		}
		if !exists {
			return models.AssessmentRecord{}, errors.Wrap(models.ErrNotFound, "update assessment",
				slog.String("assessment_id", record.ID))
		}
		return models.AssessmentRecord{}, errors.Wrap(models.ErrStaleVersion, "update assessment",
			slog.String("assessment_id", record.ID), slog.Int64("version", record.Version))
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM assessment_responses WHERE assessment_id = ?`, record.ID); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "delete responses")
	}
	if err = insertResponses(ctx, tx, record.ID, record.Responses); err != nil {
		return models.AssessmentRecord{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "commit")
	}

	record.Version++
	return record, nil
}

// LatestFinalized returns the most recently finalized record of the user for the assessment type or
// [models.ErrNotFound].
func (r *AssessmentRepository) LatestFinalized(
	ctx context.Context,
	userID string,
	assessmentType models.AssessmentType,
) (models.AssessmentRecord, error) {
	stmt := `SELECT ` + assessmentColumns + `
FROM assessments
WHERE user_id = ? AND assessment_type = ? AND finalized_at IS NOT NULL
ORDER BY finalized_at DESC
LIMIT 1`
	record, err := r.read(ctx, stmt, userID, string(assessmentType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AssessmentRecord{}, errors.Wrap(models.ErrNotFound, "latest finalized")
		}
		return models.AssessmentRecord{}, errors.Wrap(err, "latest finalized")
	}
	return record, nil
}

// Count returns the number of stored assessments.
func (r *AssessmentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.readOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM assessments`); err != nil {
		return 0, errors.Wrap(err, "count assessments")
	}
	return count, nil
}

// read selects one assessment row with query and loads its responses from the same snapshot. A missing row is
// reported as [sql.ErrNoRows].
func (r *AssessmentRepository) read(ctx context.Context, query string, args ...any) (models.AssessmentRecord, error) {
	tx, err := r.readOnly.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault, ReadOnly: true})
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "begin read transaction")
	}
	defer r.rollback(ctx, tx)

	var row assessmentRow
	if err = tx.GetContext(ctx, &row, query, args...); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "select assessment")
	}
	var responses []responseRow
	stmt := `SELECT assessment_id, question_id, raw_value, response_time_ms, category, kind, answered_at, position
FROM assessment_responses
WHERE assessment_id = ?
ORDER BY position`
	if err = tx.SelectContext(ctx, &responses, stmt, row.ID); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "select responses", slog.String("assessment_id", row.ID))
	}
	if err = tx.Commit(); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "commit read transaction")
	}
	record, err := fromRows(row, responses)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "map rows", slog.String("assessment_id", row.ID))
	}
	return record, nil
}

func (r *AssessmentRepository) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction", errors.SlogError(err))
	}
}

func insertResponses(ctx context.Context, tx *sqlx.Tx, assessmentID string, responses []models.ResponseRecord) error {
	if len(responses) == 0 {
		return nil
	}
	rows := make([]responseRow, 0, len(responses))
	for i, resp := range responses {
		rows = append(rows, responseRow{
			AssessmentID:   assessmentID,
			QuestionID:     resp.QuestionID,
			RawValue:       resp.RawValue,
			ResponseTimeMs: resp.ResponseTimeMs,
			Category:       string(resp.Category),
			Kind:           string(resp.Kind),
			AnsweredAt:     formatTime(resp.AnsweredAt),
			Position:       i,
		})
	}
	stmt := `INSERT INTO assessment_responses (assessment_id, question_id, raw_value, response_time_ms, category, kind,
                                  answered_at, position)
VALUES (:assessment_id, :question_id, :raw_value, :response_time_ms, :category, :kind, :answered_at, :position)`
	if _, err := tx.NamedExecContext(ctx, stmt, rows); err != nil {
		return errors.Wrap(err, "insert responses", slog.String("assessment_id", assessmentID),
			slog.Int("count", len(rows)))
	}
	return nil
}

func toRow(record models.AssessmentRecord) (assessmentRow, error) {
	respondentContext, err := json.Marshal(record.Context)
	if err != nil {
		return assessmentRow{}, errors.Wrap(err, "marshal respondent context")
	}
	row := assessmentRow{
		ID:                record.ID,
		UserID:            record.UserID,
		AssessmentType:    string(record.AssessmentType),
		BankVersion:       record.BankVersion,
		State:             string(record.State),
		Version:           record.Version,
		RespondentContext: string(respondentContext),
		Classification:    sql.NullString{},
		Insights:          sql.NullString{},
		InsightsDegraded:  record.InsightsDegraded,
		CreatedAt:         formatTime(record.CreatedAt),
		SubmittedAt:       formatNullTime(record.SubmittedAt),
		FinalizedAt:       formatNullTime(record.FinalizedAt),
	}
	if row.Classification, err = marshalNull(record.Classification); err != nil {
		return assessmentRow{}, errors.Wrap(err, "marshal classification")
	}
	if row.Insights, err = marshalNull(record.Insights); err != nil {
		return assessmentRow{}, errors.Wrap(err, "marshal insights")
	}
	return row, nil
}

func fromRows(row assessmentRow, responses []responseRow) (models.AssessmentRecord, error) {
	record := models.AssessmentRecord{
		ID:               row.ID,
		UserID:           row.UserID,
		AssessmentType:   models.AssessmentType(row.AssessmentType),
		BankVersion:      row.BankVersion,
		State:            models.State(row.State),
		Version:          row.Version,
		Context:          models.RespondentContext{},
		Responses:        make([]models.ResponseRecord, 0, len(responses)),
		Classification:   nil,
		Insights:         nil,
		InsightsDegraded: row.InsightsDegraded,
		CreatedAt:        time.Time{},
		SubmittedAt:      nil,
		FinalizedAt:      nil,
	}
	var err error
	if err = json.Unmarshal([]byte(row.RespondentContext), &record.Context); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "unmarshal respondent context")
	}
	if row.Classification.Valid {
		record.Classification = &models.ClassificationResult{}
		if err = json.Unmarshal([]byte(row.Classification.String), record.Classification); err != nil {
			return models.AssessmentRecord{}, errors.Wrap(err, "unmarshal classification")
		}
	}
	if row.Insights.Valid {
		record.Insights = &models.InsightPayload{}
		if err = json.Unmarshal([]byte(row.Insights.String), record.Insights); err != nil {
			return models.AssessmentRecord{}, errors.Wrap(err, "unmarshal insights")
		}
	}
	if record.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "parse created_at")
	}
	if record.SubmittedAt, err = parseNullTime(row.SubmittedAt); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "parse submitted_at")
	}
	if record.FinalizedAt, err = parseNullTime(row.FinalizedAt); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "parse finalized_at")
	}

	for _, resp := range responses {
		var answeredAt time.Time
		if answeredAt, err = parseTime(resp.AnsweredAt); err != nil {
			return models.AssessmentRecord{}, errors.Wrap(err, "parse answered_at",
				slog.String("question_id", resp.QuestionID))
		}
		record.Responses = append(record.Responses, models.ResponseRecord{
			QuestionID:     resp.QuestionID,
			RawValue:       resp.RawValue,
			ResponseTimeMs: resp.ResponseTimeMs,
			Category:       models.Category(resp.Category),
			Kind:           models.QuestionKind(resp.Kind),
			AnsweredAt:     answeredAt,
		})
	}
	return record, nil
}

func marshalNull[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err //nolint:wrapcheck // wrapped by caller
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Timestamps are stored as fixed-width UTC text so that they sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time", slog.String("value", s))
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
