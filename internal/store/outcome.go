package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome is one recorded classification.
type Outcome struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	RegionX       int       `json:"region_x"`
	RegionY       int       `json:"region_y"`
	RegionW       int       `json:"region_w"`
	RegionH       int       `json:"region_h"`
	CreatedAt     time.Time `json:"created_at"`
}

// LabelSummary aggregates the history of one label.
type LabelSummary struct {
	Label         string    `json:"label"`
	Count         int       `json:"count"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastSeen      time.Time `json:"last_seen"`
}

// OutcomeRepository provides access to the outcome history.
type OutcomeRepository struct {
	db *sql.DB
}

// Outcomes returns the outcome repository for this store.
func (s *Store) Outcomes() *OutcomeRepository {
	return &OutcomeRepository{db: s.db}
}

// Create inserts an outcome. An empty ID is replaced with a new UUID and a
// zero CreatedAt with the current time.
func (r *OutcomeRepository) Create(o *Outcome) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	probs := o.Probabilities
	if probs == nil {
		probs = []float64{}
	}
	data, err := json.Marshal(probs)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO outcomes (id, seq, label, confidence, probabilities, region_x, region_y, region_w, region_h, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, int64(o.Seq), o.Label, o.Confidence, string(data),
		o.RegionX, o.RegionY, o.RegionW, o.RegionH, o.CreatedAt,
	)
	return err
}

const outcomeColumns = `id, seq, label, confidence, probabilities, region_x, region_y, region_w, region_h, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*Outcome, error) {
	o := &Outcome{}
	var seq int64
	var probs string
	err := row.Scan(&o.ID, &seq, &o.Label, &o.Confidence, &probs,
		&o.RegionX, &o.RegionY, &o.RegionW, &o.RegionH, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Seq = uint64(seq)
	if err := json.Unmarshal([]byte(probs), &o.Probabilities); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID retrieves an outcome by its ID.
func (r *OutcomeRepository) GetByID(id string) (*Outcome, error) {
	o, err := scanOutcome(r.db.QueryRow(
		`SELECT `+outcomeColumns+` FROM outcomes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns the most recent outcomes, newest first. A limit of 0 or less
// returns everything.
func (r *OutcomeRepository) List(limit int) ([]*Outcome, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+outcomeColumns+` FROM outcomes ORDER BY created_at DESC, seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// Summary returns per-label counts, ordered by count descending.
func (r *OutcomeRepository) Summary() ([]LabelSummary, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*), AVG(confidence), MAX(created_at)
		 FROM outcomes GROUP BY label ORDER BY COUNT(*) DESC, label ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []LabelSummary
	for rows.Next() {
		var s LabelSummary
		var last string
		if err := rows.Scan(&s.Label, &s.Count, &s.AvgConfidence, &last); err != nil {
			return nil, err
		}
		s.LastSeen = parseTime(last)
		summary = append(summary, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}

// DeleteAll removes the whole history and returns the number of rows removed.
func (r *OutcomeRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM outcomes`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// parseTime reads an aggregated timestamp, which sqlite returns as text.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
