package store

import (
	"context"
	"fmt"

	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/models"
)

type sqlRepository struct {
	db     *DB
	logger *logger.Logger
}

// NewRepository returns the SQL-backed implementation of Repository, working
// against either supported engine.
func NewRepository(db *DB, logger *logger.Logger) Repository {
	return &sqlRepository{db: db, logger: logger}
}

func (r *sqlRepository) ListStates(ctx context.Context) ([]models.ThreatListState, error) {
	log := logger.FromContext(ctx)

	rows, err := r.db.QueryContext(ctx, selectListStates)
	if err != nil {
		log.Err(err).
			Str("func", "sqlRepository.ListStates").
			Msg("failed to query threat list states")
		return nil, fmt.Errorf("failed to query threat list states: %w", err)
	}
	defer rows.Close()

	var states []models.ThreatListState
	for rows.Next() {
		var st models.ThreatListState
		if err = rows.Scan(
			&st.Descriptor.ThreatType,
			&st.Descriptor.PlatformType,
			&st.Descriptor.ThreatEntryType,
			&st.ClientState,
			&st.WaitUntil,
			&st.LastSync,
		); err != nil {
			log.Err(err).
				Str("func", "sqlRepository.ListStates").
				Msg("failed to scan threat list state row")
			return nil, fmt.Errorf("failed to scan threat list state row: %w", err)
		}
		states = append(states, st)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threat list states: %w", err)
	}

	return states, nil
}

func (r *sqlRepository) SaveListState(ctx context.Context, state models.ThreatListState) error {
	log := logger.FromContext(ctx)

	_, err := r.db.ExecContext(ctx, upsertListState,
		state.Descriptor.ThreatType,
		state.Descriptor.PlatformType,
		state.Descriptor.ThreatEntryType,
		state.ClientState,
		state.WaitUntil,
		state.LastSync,
	)
	if err != nil {
		log.Err(err).
			Str("func", "sqlRepository.SaveListState").
			Str("list", state.Descriptor.String()).
			Msg("failed to upsert threat list state")
		return fmt.Errorf("failed to save state of list %s: %w", state.Descriptor, err)
	}

	return nil
}

func (r *sqlRepository) DeleteList(ctx context.Context, desc models.ThreatDescriptor) error {
	log := logger.FromContext(ctx)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	args := []any{desc.ThreatType, desc.PlatformType, desc.ThreatEntryType}
	if _, err = tx.ExecContext(ctx, deleteListPrefixes, args...); err != nil {
		log.Err(err).
			Str("func", "sqlRepository.DeleteList").
			Str("list", desc.String()).
			Msg("failed to delete prefix set")
		return fmt.Errorf("failed to delete prefixes of list %s: %w", desc, err)
	}
	if _, err = tx.ExecContext(ctx, deleteListState, args...); err != nil {
		log.Err(err).
			Str("func", "sqlRepository.DeleteList").
			Str("list", desc.String()).
			Msg("failed to delete list state")
		return fmt.Errorf("failed to delete state of list %s: %w", desc, err)
	}

	return tx.Commit()
}

func (r *sqlRepository) LoadPrefixes(ctx context.Context, desc models.ThreatDescriptor) ([][]byte, error) {
	log := logger.FromContext(ctx)

	rows, err := r.db.QueryContext(ctx, selectListPrefixes,
		desc.ThreatType, desc.PlatformType, desc.ThreatEntryType)
	if err != nil {
		log.Err(err).
			Str("func", "sqlRepository.LoadPrefixes").
			Str("list", desc.String()).
			Msg("failed to query prefix set")
		return nil, fmt.Errorf("failed to query prefixes of list %s: %w", desc, err)
	}
	defer rows.Close()

	var prefixes [][]byte
	for rows.Next() {
		var value []byte
		if err = rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan prefix row: %w", err)
		}
		prefixes = append(prefixes, value)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prefixes of list %s: %w", desc, err)
	}

	return prefixes, nil
}

func (r *sqlRepository) ReplacePrefixes(ctx context.Context, desc models.ThreatDescriptor, prefixes [][]byte) error {
	log := logger.FromContext(ctx)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, deleteListPrefixes,
		desc.ThreatType, desc.PlatformType, desc.ThreatEntryType); err != nil {
		log.Err(err).
			Str("func", "sqlRepository.ReplacePrefixes").
			Str("list", desc.String()).
			Msg("failed to clear prefix set")
		return fmt.Errorf("failed to clear prefixes of list %s: %w", desc, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertListPrefix)
	if err != nil {
		return fmt.Errorf("failed to prepare prefix insert: %w", err)
	}
	defer stmt.Close()

	for _, value := range prefixes {
		if _, err = stmt.ExecContext(ctx, value,
			desc.ThreatType, desc.PlatformType, desc.ThreatEntryType); err != nil {
			if isDuplicateKey(err) {
				continue
			}
			log.Err(err).
				Str("func", "sqlRepository.ReplacePrefixes").
				Str("list", desc.String()).
				Msg("failed to insert prefix")
			return fmt.Errorf("failed to insert prefix of list %s: %w", desc, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prefix replace: %w", err)
	}

	log.Debug().
		Str("func", "sqlRepository.ReplacePrefixes").
		Str("list", desc.String()).
		Int("entries", len(prefixes)).
		Msg("persisted prefix set")

	return nil
}
