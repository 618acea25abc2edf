package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/interviewagent/internal/model"
)

const interviewColumns = `id, user_id, job_position, job_description, duration, interview_type, topics_json, created_at`

// PostgresInterviewRepo はPostgreSQLを使用した面接リポジトリ。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

// Create は面接を作成する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, interview *model.Interview) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interviews (`+interviewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		interview.ID, interview.UserID, interview.JobPosition, interview.JobDescription,
		interview.Duration, string(interview.InterviewType), interview.TopicsJSON, interview.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interview: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの面接一覧をcreated_at降順で返す。
func (r *PostgresInterviewRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Interview, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	defer rows.Close()

	interviews := make([]*model.Interview, 0)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interviews: %w", err)
	}
	return interviews, nil
}

// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	iv, err := scanInterview(r.db.QueryRowContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find interview by ID: %w", err)
	}
	return iv, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(s rowScanner) (*model.Interview, error) {
	iv := &model.Interview{}
	var interviewType string
	err := s.Scan(&iv.ID, &iv.UserID, &iv.JobPosition, &iv.JobDescription,
		&iv.Duration, &interviewType, &iv.TopicsJSON, &iv.CreatedAt)
	if err != nil {
		return nil, err
	}
	iv.InterviewType = model.InterviewType(interviewType)
	return iv, nil
}

// compile-time interface check
var _ InterviewRepository = (*PostgresInterviewRepo)(nil)
