package store

// schema is applied once at Open via Migrate. Table/index shapes mirror
// spec §4.D exactly; grounded on the teacher's habit (platform/store/pg)
// of keeping DDL as a single embedded string executed with database/sql
// rather than a migration framework, appropriate for a single local file
const schema = `
CREATE TABLE IF NOT EXISTS data_items (
	id              TEXT PRIMARY KEY,
	namespace       TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata_json   TEXT NOT NULL DEFAULT '{}',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	days_date       TEXT NOT NULL,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	embedding_attempts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_data_items_namespace_days_date ON data_items (namespace, days_date);
CREATE INDEX IF NOT EXISTS idx_data_items_days_date ON data_items (days_date);
CREATE INDEX IF NOT EXISTS idx_data_items_embedding_status ON data_items (embedding_status);

CREATE TABLE IF NOT EXISTS data_sources (
	namespace   TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	config_json TEXT NOT NULL DEFAULT '{}',
	active      INTEGER NOT NULL DEFAULT 1,
	item_count  INTEGER NOT NULL DEFAULT 0,
	last_sync   TEXT
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value_json TEXT NOT NULL
);
`
