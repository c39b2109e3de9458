package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/tutor/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_option INTEGER NOT NULL DEFAULT 0,
		rubric TEXT NOT NULL DEFAULT '',
		model_answer TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS learner_snapshots (
		learner TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, topic, difficulty, text, options, correct_option, rubric, model_answer`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (model.Question, error) {
	var q model.Question
	var options string
	if err := r.Scan(&q.ID, &q.Topic, &q.Difficulty, &q.Text, &options, &q.CorrectOption, &q.Rubric, &q.ModelAnswer); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	if len(q.Options) == 0 {
		q.Options = nil
	}
	return q, nil
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	if !q.Difficulty.Valid() {
		return 0, fmt.Errorf("invalid difficulty %q", q.Difficulty)
	}
	if len(q.Options) > 0 && (q.CorrectOption < 0 || q.CorrectOption >= len(q.Options)) {
		return 0, fmt.Errorf("correct option %d out of range for %d options", q.CorrectOption, len(q.Options))
	}
	options := q.Options
	if options == nil {
		options = []string{}
	}
	opts, err := json.Marshal(options)
	if err != nil {
		return 0, fmt.Errorf("encode options: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (topic, difficulty, text, options, correct_option, rubric, model_answer)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.Topic, q.Difficulty, q.Text, string(opts), q.CorrectOption, q.Rubric, q.ModelAnswer,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQuestionsFiltered returns questions matching the given filters, ordered by id.
// Empty strings mean no filtering on that field.
func (s *Store) ListQuestionsFiltered(difficulty string, topic string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListDistinctTopics returns every topic in alphabetical order.
func (s *Store) ListDistinctTopics() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT topic FROM questions ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
