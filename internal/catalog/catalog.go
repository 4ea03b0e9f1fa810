/*
Copyright 2026 Crucible Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package catalog is the durable metadata index for the snapshot
// subsystem (SPEC_FULL.md §4.C): one row per snapshot, with parent
// links, references, and sandbox policy blobs, backed by a single
// SQLite file opened through database/sql.
//
// Grounded on original_source/crates/crucible-daemon/src/db.rs for
// schema and semantics; the database/sql + schema-as-const-string +
// repository-method shape follows other_examples' relational/orm.go.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crucible-sh/crucible/internal/crucibleerr"
	_ "modernc.org/sqlite"
)

// State is a snapshot's lifecycle state.
type State string

const (
	StateCreating State = "CREATING"
	StateReady    State = "READY"
	StateFailed   State = "FAILED"
	StateDeleted  State = "DELETED"
)

// Mode is the snapshot capture mode.
type Mode string

const (
	ModeFull       Mode = "FULL"
	ModeMemoryOnly Mode = "MEMORY_ONLY"
)

// Snapshot is a single row of the snapshots table.
type Snapshot struct {
	ID              string
	Provider        string
	SourceSandboxID string
	CreatedAt       time.Time
	Mode            Mode
	Name            string
	Labels          map[string]string
	ParentID        string // empty if parentless
	RootID          string
	State           State
	SizeBytes       int64
	Pinned          bool
	TTLExpiresAt    *time.Time
	LastError       string
}

// Ref is a pin-by-reference row.
type Ref struct {
	SnapshotID string
	RefType    string
	RefID      string
	CreatedAt  time.Time
}

// Catalog wraps a connection pool over the SQLite-backed metadata store.
type Catalog struct {
	db *sql.DB
}

// Open opens (and migrates) the catalog at path. A pool size of 5
// mirrors the original Rust daemon's sqlx max_connections(5).
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(5)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// InsertCreating records a new snapshot row in state CREATING. If
// parentID is non-empty, rootID is resolved by following the parent's
// own root; otherwise the new snapshot is its own root.
func (c *Catalog) InsertCreating(ctx context.Context, id, provider, sourceSandboxID string, mode Mode, parentID string) error {
	rootID := id
	if parentID != "" {
		parent, err := c.GetByID(ctx, parentID)
		if err != nil {
			return fmt.Errorf("catalog: insert creating %s: resolve parent root: %w", id, err)
		}
		rootID = parent.RootID
	}

	var parentCol any
	if parentID != "" {
		parentCol = parentID
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, provider, source_sandbox_id, created_at, mode,
			parent_snapshot_id, root_snapshot_id, state, size_bytes, pinned
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		id, provider, sourceSandboxID, time.Now().UnixNano(), string(mode),
		parentCol, rootID, string(StateCreating),
	)
	if err != nil {
		return fmt.Errorf("catalog: insert creating %s: %w", id, err)
	}
	return nil
}

// SetName sets the human name and label set for an existing row (may
// be called right after InsertCreating, before the content is ready).
func (c *Catalog) SetName(ctx context.Context, id, name string, labels map[string]string) error {
	labelJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("catalog: set name %s: marshal labels: %w", id, err)
	}
	_, err = c.db.ExecContext(ctx, `UPDATE snapshots SET name = ?, labels = ? WHERE snapshot_id = ?`, name, string(labelJSON), id)
	if err != nil {
		return fmt.Errorf("catalog: set name %s: %w", id, err)
	}
	return nil
}

// MarkReady transitions a CREATING row to READY and records its final size.
func (c *Catalog) MarkReady(ctx context.Context, id string, sizeBytes int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE snapshots SET state = ?, size_bytes = ? WHERE snapshot_id = ? AND state = ?`,
		string(StateReady), sizeBytes, id, string(StateCreating))
	if err != nil {
		return fmt.Errorf("catalog: mark ready %s: %w", id, err)
	}
	return requireRowsAffected(res, "mark ready", id)
}

// MarkFailed transitions a row to FAILED with a diagnostic, whatever its
// current state: CREATING after a failed create, READY when the reaper
// finds its final directory missing.
func (c *Catalog) MarkFailed(ctx context.Context, id, lastErr string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE snapshots SET state = ?, last_error = ? WHERE snapshot_id = ?`,
		string(StateFailed), lastErr, id)
	if err != nil {
		return fmt.Errorf("catalog: mark failed %s: %w", id, err)
	}
	return nil
}

// MarkDeleted transitions any row to DELETED. Idempotent.
func (c *Catalog) MarkDeleted(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE snapshots SET state = ? WHERE snapshot_id = ?`, string(StateDeleted), id)
	if err != nil {
		return fmt.Errorf("catalog: mark deleted %s: %w", id, err)
	}
	return nil
}

// GetState returns the current state of id.
func (c *Catalog) GetState(ctx context.Context, id string) (State, error) {
	var state string
	err := c.db.QueryRowContext(ctx, `SELECT state FROM snapshots WHERE snapshot_id = ?`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("catalog: get state %s: %w", id, crucibleerr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: get state %s: %w", id, err)
	}
	return State(state), nil
}

// GetByID loads the full row for id.
func (c *Catalog) GetByID(ctx context.Context, id string) (*Snapshot, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT snapshot_id, provider, source_sandbox_id, created_at, mode, name, labels,
		       parent_snapshot_id, root_snapshot_id, state, size_bytes, pinned, ttl_expires_at, last_error
		FROM snapshots WHERE snapshot_id = ?`, id)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("catalog: get %s: %w", id, crucibleerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return s, nil
}

// ListBySandbox returns every snapshot row recorded for sourceSandboxID,
// most recent first.
func (c *Catalog) ListBySandbox(ctx context.Context, sourceSandboxID string) ([]*Snapshot, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT snapshot_id, provider, source_sandbox_id, created_at, mode, name, labels,
		       parent_snapshot_id, root_snapshot_id, state, size_bytes, pinned, ttl_expires_at, last_error
		FROM snapshots WHERE source_sandbox_id = ? ORDER BY created_at DESC`, sourceSandboxID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list by sandbox %s: %w", sourceSandboxID, err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// ListAllReady returns every READY snapshot row, used by the GC engine
// to build its protected-set closure and candidate list.
func (c *Catalog) ListAllReady(ctx context.Context) ([]*Snapshot, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT snapshot_id, provider, source_sandbox_id, created_at, mode, name, labels,
		       parent_snapshot_id, root_snapshot_id, state, size_bytes, pinned, ttl_expires_at, last_error
		FROM snapshots WHERE state = ?`, string(StateReady))
	if err != nil {
		return nil, fmt.Errorf("catalog: list all ready: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// AddRef pins a snapshot by an external reference.
func (c *Catalog) AddRef(ctx context.Context, snapshotID, refType, refID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshot_refs (snapshot_id, ref_type, ref_id, created_at) VALUES (?, ?, ?, ?)`,
		snapshotID, refType, refID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("catalog: add ref %s: %w", snapshotID, err)
	}
	return nil
}

// ListRefs returns every reference recorded against snapshotID.
func (c *Catalog) ListRefs(ctx context.Context, snapshotID string) ([]Ref, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT snapshot_id, ref_type, ref_id, created_at FROM snapshot_refs WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list refs %s: %w", snapshotID, err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var r Ref
		var createdAt int64
		if err := rows.Scan(&r.SnapshotID, &r.RefType, &r.RefID, &createdAt); err != nil {
			return nil, fmt.Errorf("catalog: list refs %s: scan: %w", snapshotID, err)
		}
		r.CreatedAt = time.Unix(0, createdAt)
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ListAllRefs returns the set of snapshot IDs that carry at least one
// external reference, for the GC engine's directly-protected seed set.
func (c *Catalog) ListAllRefs(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT snapshot_id FROM snapshot_refs`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list all refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: list all refs: scan: %w", err)
		}
		refs[id] = true
	}
	return refs, rows.Err()
}

// ListSandboxSpecs returns every recorded sandbox_id, for listing.
func (c *Catalog) ListSandboxSpecs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT sandbox_id FROM sandbox_specs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list sandbox specs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: list sandbox specs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPinned updates a snapshot's pinned flag.
func (c *Catalog) SetPinned(ctx context.Context, id string, pinned bool) error {
	v := 0
	if pinned {
		v = 1
	}
	_, err := c.db.ExecContext(ctx, `UPDATE snapshots SET pinned = ? WHERE snapshot_id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("catalog: set pinned %s: %w", id, err)
	}
	return nil
}

// ListCreatingIDs returns the IDs of every row currently in CREATING,
// for reaper use.
func (c *Catalog) ListCreatingIDs(ctx context.Context) ([]string, error) {
	return c.listIDsInState(ctx, StateCreating)
}

// ListReadyIDs returns the IDs of every row currently in READY, for
// reaper use.
func (c *Catalog) ListReadyIDs(ctx context.Context) ([]string, error) {
	return c.listIDsInState(ctx, StateReady)
}

func (c *Catalog) listIDsInState(ctx context.Context, state State) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT snapshot_id FROM snapshots WHERE state = ?`, string(state))
	if err != nil {
		return nil, fmt.Errorf("catalog: list ids in state %s: %w", state, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: list ids in state %s: scan: %w", state, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutSandboxSpec stores (or replaces) the policy blob for a sandbox,
// used by internal/executor's PolicySource to look up policy without
// coupling to the provider (see SPEC_FULL.md §9).
func (c *Catalog) PutSandboxSpec(ctx context.Context, sandboxID, provider, image string, policyJSON []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sandbox_specs (sandbox_id, provider, image, policy, state, created_at)
		VALUES (?, ?, ?, ?, 'READY', ?)
		ON CONFLICT(sandbox_id) DO UPDATE SET provider = excluded.provider, image = excluded.image, policy = excluded.policy`,
		sandboxID, provider, image, string(policyJSON), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("catalog: put sandbox spec %s: %w", sandboxID, err)
	}
	return nil
}

// GetSandboxSpec returns the raw policy blob stored for sandboxID.
func (c *Catalog) GetSandboxSpec(ctx context.Context, sandboxID string) (provider, image string, policyJSON []byte, err error) {
	var policy string
	err = c.db.QueryRowContext(ctx, `SELECT provider, image, policy FROM sandbox_specs WHERE sandbox_id = ?`, sandboxID).
		Scan(&provider, &image, &policy)
	if err == sql.ErrNoRows {
		return "", "", nil, fmt.Errorf("catalog: get sandbox spec %s: %w", sandboxID, crucibleerr.ErrNotFound)
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("catalog: get sandbox spec %s: %w", sandboxID, err)
	}
	return provider, image, []byte(policy), nil
}

// DeleteSandboxSpec removes the spec row for sandboxID. Idempotent.
func (c *Catalog) DeleteSandboxSpec(ctx context.Context, sandboxID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM sandbox_specs WHERE sandbox_id = ?`, sandboxID)
	if err != nil {
		return fmt.Errorf("catalog: delete sandbox spec %s: %w", sandboxID, err)
	}
	return nil
}

// Ping verifies the connection pool is serving queries, for the health checker.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		s            Snapshot
		createdAt    int64
		mode         string
		name         sql.NullString
		labelsJSON   sql.NullString
		parentID     sql.NullString
		state        string
		ttlExpiresAt sql.NullInt64
		lastErr      sql.NullString
		pinned       int
	)

	if err := row.Scan(&s.ID, &s.Provider, &s.SourceSandboxID, &createdAt, &mode, &name, &labelsJSON,
		&parentID, &s.RootID, &state, &s.SizeBytes, &pinned, &ttlExpiresAt, &lastErr); err != nil {
		return nil, err
	}

	s.CreatedAt = time.Unix(0, createdAt)
	s.Mode = Mode(mode)
	s.Name = name.String
	s.ParentID = parentID.String
	s.State = State(state)
	s.Pinned = pinned != 0
	s.LastError = lastErr.String

	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &s.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if ttlExpiresAt.Valid {
		t := time.Unix(0, ttlExpiresAt.Int64)
		s.TTLExpiresAt = &t
	}

	return &s, nil
}

func scanSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	var out []*Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func requireRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: %s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("catalog: %s %s: %w", op, id, crucibleerr.ErrNotFound)
	}
	return nil
}
