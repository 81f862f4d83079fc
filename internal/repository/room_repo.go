package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"detective_backend/internal/crypto"
	"detective_backend/internal/domain"
	"detective_backend/internal/session"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomRepository persists rooms with the game state encrypted at rest. Writes
// are compare-and-swap on state_version so concurrent folds can't clobber
// each other.
type RoomRepository struct {
	db    *pgxpool.Pool
	codec *crypto.BlobCodec
}

func NewRoomRepository(db *pgxpool.Pool, codec *crypto.BlobCodec) *RoomRepository {
	return &RoomRepository{db: db, codec: codec}
}

func (r *RoomRepository) CreateRoom(ctx context.Context, rec *session.RoomRecord) error {
	blob, err := r.sealState(rec.State)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO rooms (id, detective_id, culprit_player_id, thread_id, state_blob, state_version)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.DetectiveID,
		rec.CulpritPlayerID,
		rec.ThreadID,
		blob,
		rec.Version,
	)
	return err
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (*session.RoomRecord, error) {
	rec := &session.RoomRecord{ID: id}
	var blob string

	err := r.db.QueryRow(ctx,
		`SELECT detective_id, culprit_player_id, thread_id, state_blob, state_version
		 FROM rooms
		 WHERE id = $1`,
		id,
	).Scan(&rec.DetectiveID, &rec.CulpritPlayerID, &rec.ThreadID, &blob, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrRoomNotFound
		}
		return nil, err
	}

	rec.State, err = r.openState(blob)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RoomRepository) UpdateRoom(ctx context.Context, id string, gs *domain.GameState, expectedVersion int64) (int64, error) {
	blob, err := r.sealState(gs)
	if err != nil {
		return 0, err
	}

	var newVersion int64
	err = r.db.QueryRow(ctx,
		`UPDATE rooms
		 SET state_blob = $1, state_version = state_version + 1, updated_at = now()
		 WHERE id = $2 AND state_version = $3
		 RETURNING state_version`,
		blob, id, expectedVersion,
	).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// row missing entirely vs concurrent writer
			var exists bool
			if chkErr := r.db.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, id,
			).Scan(&exists); chkErr == nil && !exists {
				return 0, session.ErrRoomNotFound
			}
			return 0, session.ErrVersionConflict
		}
		return 0, err
	}
	return newVersion, nil
}

func (r *RoomRepository) sealState(gs *domain.GameState) (string, error) {
	plain, err := json.Marshal(gs)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return r.codec.Encrypt(plain)
}

func (r *RoomRepository) openState(blob string) (*domain.GameState, error) {
	plain, err := r.codec.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	var gs domain.GameState
	if err := json.Unmarshal(plain, &gs); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &gs, nil
}
