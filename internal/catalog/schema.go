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

package catalog

// schemaSQL mirrors the teacher-pack's "schema as a const SQL string"
// convention (other_examples' relational/orm.go), adapted from the
// table shapes in original_source/crates/crucible-daemon/src/db.rs.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id       TEXT PRIMARY KEY,
	provider          TEXT NOT NULL,
	source_sandbox_id TEXT NOT NULL,
	created_at        INTEGER NOT NULL,
	mode              TEXT NOT NULL,
	name              TEXT,
	labels            TEXT,
	parent_snapshot_id TEXT,
	root_snapshot_id  TEXT NOT NULL,
	state             TEXT NOT NULL,
	size_bytes        INTEGER NOT NULL DEFAULT 0,
	components        TEXT,
	pinned            INTEGER NOT NULL DEFAULT 0,
	ttl_expires_at    INTEGER,
	last_error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_source_sandbox
	ON snapshots(source_sandbox_id);

CREATE INDEX IF NOT EXISTS idx_snapshots_parent
	ON snapshots(parent_snapshot_id);

CREATE TABLE IF NOT EXISTS snapshot_refs (
	snapshot_id TEXT NOT NULL,
	ref_type    TEXT NOT NULL,
	ref_id      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, ref_type, ref_id),
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sandbox_specs (
	sandbox_id   TEXT PRIMARY KEY,
	provider     TEXT NOT NULL,
	image        TEXT NOT NULL,
	policy       TEXT NOT NULL,
	state        TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
`
