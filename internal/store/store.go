// Package store persists consensus parameter snapshots and the selection
// round log to sqlite, enough to resume a labelling session exactly where
// it left off.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crowd-data/labelfuse/internal/active"
	"github.com/crowd-data/labelfuse/internal/consensus"
)

// ErrNoSnapshot reports a session with no persisted parameter snapshot.
var ErrNoSnapshot = errors.New("no parameter snapshot for session")

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending schema migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	// A single connection keeps in-memory databases coherent and avoids
	// sqlite write contention.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateSession registers a new labelling session over a feature space of
// the given dimension and returns its id.
func (s *Store) CreateSession(dim int) (string, error) {
	if dim <= 0 {
		return "", fmt.Errorf("session dimension must be positive, got %d", dim)
	}
	id := "ses_" + uuid.NewString()
	_, err := s.Exec(`INSERT INTO sessions (session_id, dim) VALUES (?, ?)`, id, dim)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// SessionDim returns the feature dimension a session was created with.
func (s *Store) SessionDim(sessionID string) (int, error) {
	var dim int
	err := s.QueryRow(`SELECT dim FROM sessions WHERE session_id = ?`, sessionID).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("unknown session %q", sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	return dim, nil
}

// SaveSnapshot persists a validated parameter snapshot for the given
// training pass. Weight vectors are stored as JSON arrays; per-labeller
// rows carry the fallback flag so constant-reliability labellers
// round-trip without a weight vector.
func (s *Store) SaveSnapshot(sessionID string, pass int, params *consensus.Parameters) error {
	if params == nil {
		return errors.New("parameters must not be nil")
	}

	weights, err := json.Marshal(params.Weights)
	if err != nil {
		return fmt.Errorf("encode global weights: %w", err)
	}

	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO parameter_snapshots (session_id, pass, weights, bias) VALUES (?, ?, ?, ?)`,
		sessionID, pass, string(weights), params.Bias,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	for _, id := range params.LabellerIDs() {
		lp := params.Labellers[id]
		var labellerWeights any
		if !lp.Fallback {
			encoded, err := json.Marshal(lp.Weights)
			if err != nil {
				return fmt.Errorf("encode labeller %d weights: %w", id, err)
			}
			labellerWeights = string(encoded)
		}
		_, err = tx.Exec(
			`INSERT INTO labeller_params (snapshot_id, labeller_id, weights, bias, fallback, fallback_rate)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			snapshotID, id, labellerWeights, lp.Bias, lp.Fallback, lp.FallbackRate,
		)
		if err != nil {
			return fmt.Errorf("insert labeller %d params: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadLatestSnapshot returns the most recent parameter snapshot for a
// session and its pass number. ErrNoSnapshot when none has been saved.
func (s *Store) LoadLatestSnapshot(sessionID string) (*consensus.Parameters, int, error) {
	dim, err := s.SessionDim(sessionID)
	if err != nil {
		return nil, 0, err
	}

	var (
		snapshotID int64
		pass       int
		weightsRaw string
		bias       float64
	)
	err = s.QueryRow(
		`SELECT snapshot_id, pass, weights, bias FROM parameter_snapshots
		 WHERE session_id = ? ORDER BY pass DESC, snapshot_id DESC LIMIT 1`,
		sessionID,
	).Scan(&snapshotID, &pass, &weightsRaw, &bias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoSnapshot, sessionID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load snapshot: %w", err)
	}

	params := consensus.NewParameters(dim)
	params.Bias = bias
	if err := json.Unmarshal([]byte(weightsRaw), &params.Weights); err != nil {
		return nil, 0, fmt.Errorf("decode global weights: %w", err)
	}

	rows, err := s.Query(
		`SELECT labeller_id, weights, bias, fallback, fallback_rate
		 FROM labeller_params WHERE snapshot_id = ? ORDER BY labeller_id`,
		snapshotID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("load labeller params: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			labellerID   int
			labellerRaw  sql.NullString
			labellerBias float64
			fallback     bool
			fallbackRate float64
		)
		if err := rows.Scan(&labellerID, &labellerRaw, &labellerBias, &fallback, &fallbackRate); err != nil {
			return nil, 0, fmt.Errorf("scan labeller params: %w", err)
		}
		lp := consensus.LabellerParams{
			Bias:         labellerBias,
			Fallback:     fallback,
			FallbackRate: fallbackRate,
		}
		if labellerRaw.Valid {
			if err := json.Unmarshal([]byte(labellerRaw.String), &lp.Weights); err != nil {
				return nil, 0, fmt.Errorf("decode labeller %d weights: %w", labellerID, err)
			}
		}
		params.Labellers[labellerID] = lp
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate labeller params: %w", err)
	}

	return params, pass, nil
}

// AppendRound appends one selection to the session's ordered round log.
func (s *Store) AppendRound(sessionID string, round *active.SelectionRound) error {
	if round == nil {
		return errors.New("selection round must not be nil")
	}
	_, err := s.Exec(
		`INSERT INTO selection_rounds (round_id, session_id, round, example_index, labeller_id, score, backend, unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		round.RoundID, sessionID, round.Round, round.ExampleIndex,
		round.LabellerID, round.Score, round.Backend, round.UnixNanos,
	)
	if err != nil {
		return fmt.Errorf("append round %s: %w", round.RoundID, err)
	}
	return nil
}

// ListRounds returns a session's selection log in selection order.
func (s *Store) ListRounds(sessionID string) ([]active.SelectionRound, error) {
	rows, err := s.Query(
		`SELECT round_id, round, example_index, labeller_id, score, backend, unix_nanos
		 FROM selection_rounds WHERE session_id = ?
		 ORDER BY unix_nanos, round_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []active.SelectionRound
	for rows.Next() {
		var r active.SelectionRound
		if err := rows.Scan(&r.RoundID, &r.Round, &r.ExampleIndex, &r.LabellerID, &r.Score, &r.Backend, &r.UnixNanos); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return out, nil
}
