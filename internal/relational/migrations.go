package relational

import (
	"context"
	"fmt"
	"strings"

	"ltmc/internal/apperrors"
)

// migration is one forward-only schema step. Statements use IF NOT
// EXISTS so a replayed step is a no-op.
type migration struct {
	version int
	name    string
	apply   func(d dialect) []string
}

// dialect abstracts the DDL differences between the two drivers.
type dialect struct {
	driver string
}

func (d dialect) pk() string {
	if d.driver == "postgres" {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d dialect) timestamp() string {
	if d.driver == "postgres" {
		return "TIMESTAMPTZ NOT NULL DEFAULT NOW()"
	}
	return "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"
}

func (d dialect) timestampNull() string {
	if d.driver == "postgres" {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

var migrations = []migration{
	{
		version: 1,
		name:    "core tables",
		apply: func(d dialect) []string {
			return []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS Resources (
					id %s,
					file_name TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					created_at %s
				)`, d.pk(), d.timestamp()),
				`CREATE INDEX IF NOT EXISTS idx_resources_file_name ON Resources(file_name)`,
				`CREATE INDEX IF NOT EXISTS idx_resources_type ON Resources(resource_type)`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ResourceChunks (
					id %s,
					resource_id BIGINT NOT NULL REFERENCES Resources(id) ON DELETE CASCADE,
					chunk_text TEXT NOT NULL,
					vector_id BIGINT NOT NULL UNIQUE,
					position INTEGER NOT NULL,
					generation_method TEXT NOT NULL DEFAULT 'sequential'
				)`, d.pk()),
				`CREATE INDEX IF NOT EXISTS idx_chunks_resource ON ResourceChunks(resource_id)`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ChatHistory (
					id %s,
					conversation_id TEXT NOT NULL,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					timestamp %s,
					source_tool TEXT
				)`, d.pk(), d.timestamp()),
				`CREATE INDEX IF NOT EXISTS idx_chat_conversation ON ChatHistory(conversation_id)`,
				`CREATE INDEX IF NOT EXISTS idx_chat_source_tool ON ChatHistory(source_tool)`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ContextLinks (
					id %s,
					message_id BIGINT NOT NULL REFERENCES ChatHistory(id) ON DELETE CASCADE,
					chunk_id BIGINT NOT NULL REFERENCES ResourceChunks(id) ON DELETE CASCADE
				)`, d.pk()),
				`CREATE INDEX IF NOT EXISTS idx_context_links_message ON ContextLinks(message_id)`,
				`CREATE INDEX IF NOT EXISTS idx_context_links_chunk ON ContextLinks(chunk_id)`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS Todos (
					id %s,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					priority TEXT NOT NULL DEFAULT 'medium',
					status TEXT NOT NULL DEFAULT 'pending',
					created_at %s,
					completed_at %s
				)`, d.pk(), d.timestamp(), d.timestampNull()),
				`CREATE INDEX IF NOT EXISTS idx_todos_status ON Todos(status)`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS VectorIdSequence (
					id %s,
					last_vector_id BIGINT NOT NULL DEFAULT 0
				)`, d.pk()),
			}
		},
	},
	{
		version: 2,
		name:    "code patterns",
		apply: func(d dialect) []string {
			return []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS CodePatterns (
					id %s,
					function_name TEXT,
					file_name TEXT,
					module_name TEXT,
					input_prompt TEXT NOT NULL,
					generated_code TEXT NOT NULL,
					result TEXT NOT NULL CHECK (result IN ('pass','fail','partial')),
					execution_time_ms BIGINT,
					error_message TEXT,
					tags TEXT NOT NULL DEFAULT '[]',
					created_at %s,
					vector_id BIGINT NOT NULL UNIQUE
				)`, d.pk(), d.timestamp()),
				`CREATE INDEX IF NOT EXISTS idx_patterns_result ON CodePatterns(result)`,
				`CREATE INDEX IF NOT EXISTS idx_patterns_function ON CodePatterns(function_name)`,
			}
		},
	},
	{
		version: 3,
		name:    "resource links",
		apply: func(d dialect) []string {
			return []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ResourceLinks (
					id %s,
					source_resource_id BIGINT NOT NULL REFERENCES Resources(id) ON DELETE CASCADE,
					target_resource_id BIGINT NOT NULL REFERENCES Resources(id) ON DELETE CASCADE,
					link_type TEXT NOT NULL,
					created_at %s,
					metadata TEXT,
					weight REAL NOT NULL DEFAULT 1.0,
					UNIQUE(source_resource_id, target_resource_id, link_type)
				)`, d.pk(), d.timestamp()),
				`CREATE INDEX IF NOT EXISTS idx_links_source ON ResourceLinks(source_resource_id)`,
				`CREATE INDEX IF NOT EXISTS idx_links_target ON ResourceLinks(target_resource_id)`,
				`CREATE INDEX IF NOT EXISTS idx_links_type ON ResourceLinks(link_type)`,
				`CREATE INDEX IF NOT EXISTS idx_links_weight ON ResourceLinks(weight)`,
			}
		},
	},
}

// requiredColumns is the schema contract checked at startup. A missing
// column is a fatal SchemaError, not something to limp along with.
var requiredColumns = map[string][]string{
	"Resources":      {"id", "file_name", "resource_type", "created_at"},
	"ResourceChunks": {"id", "resource_id", "chunk_text", "vector_id", "position", "generation_method"},
	"ChatHistory":    {"id", "conversation_id", "role", "content", "timestamp", "source_tool"},
	"ContextLinks":   {"id", "message_id", "chunk_id"},
	"Todos":          {"id", "title", "description", "priority", "status", "created_at", "completed_at"},
	"CodePatterns": {"id", "function_name", "file_name", "module_name", "input_prompt", "generated_code",
		"result", "execution_time_ms", "error_message", "tags", "created_at", "vector_id"},
	"ResourceLinks":    {"id", "source_resource_id", "target_resource_id", "link_type", "created_at", "metadata", "weight"},
	"VectorIdSequence": {"id", "last_vector_id"},
}

// Migrate applies pending migrations under an exclusive lock. It
// refuses to touch a database that has tables but no migration
// history, since that schema is not one it recognizes.
func (s *Store) Migrate(ctx context.Context) error {
	unlock, err := s.lockExclusive(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	hasHistory, err := s.tableExists(ctx, "schema_migrations")
	if err != nil {
		return err
	}
	if !hasHistory {
		hasCore, err := s.tableExists(ctx, "Resources")
		if err != nil {
			return err
		}
		if hasCore {
			return apperrors.New(apperrors.ErrorCodeSchema,
				"database has tables but no migration history; refusing to migrate an unrecognized schema", nil)
		}
		if _, err := s.db.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
			return apperrors.Wrap(apperrors.ErrorCodeSchema, "creating migration history table", err)
		}
	}

	current := 0
	if err := s.db.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeSchema, "reading migration history", err)
	}

	d := dialect{driver: s.driver}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, d, m); err != nil {
			return err
		}
		s.logger.Info("applied migration", "version", m.version, "name", m.name)
	}

	return s.seedSequence(ctx)
}

func (s *Store) applyMigration(ctx context.Context, d dialect, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeSchema, "opening migration transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.apply(d) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrorCodeSchema,
				fmt.Sprintf("migration %d (%s) failed", m.version, m.name), err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)`),
		m.version, m.name); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeSchema, "recording migration", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeSchema, "committing migration", err)
	}
	return nil
}

// seedSequence inserts the single allocator row when it is absent.
func (s *Store) seedSequence(ctx context.Context) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM VectorIdSequence`); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeSchema, "checking vector id sequence", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO VectorIdSequence (last_vector_id) VALUES (0)`); err != nil {
			return apperrors.Wrap(apperrors.ErrorCodeSchema, "seeding vector id sequence", err)
		}
	}
	return nil
}

// lockExclusive serializes migration across processes. Postgres uses
// an advisory lock; sqlite relies on the single write connection plus
// the busy timeout.
func (s *Store) lockExclusive(ctx context.Context) (func(), error) {
	if s.driver != "postgres" {
		return func() {}, nil
	}
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeSchema, "acquiring migration connection", err)
	}
	const migrationLockKey = 0x4c544d43 // "LTMC"
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrorCodeSchema, "acquiring migration lock", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
		_ = conn.Close()
	}, nil
}

// VerifySchema checks that every required column exists, guarding
// against drift between code and database.
func (s *Store) VerifySchema(ctx context.Context) error {
	var missing []string
	for table, cols := range requiredColumns {
		have, err := s.tableColumns(ctx, table)
		if err != nil {
			return err
		}
		if len(have) == 0 {
			missing = append(missing, table+" (table)")
			continue
		}
		for _, col := range cols {
			if !have[strings.ToLower(col)] {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.ErrorCodeSchema,
			"schema verification failed, missing: "+strings.Join(missing, ", "),
			map[string]interface{}{"missing": missing})
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	var query string
	if s.driver == "postgres" {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE lower(table_name) = lower($1)`
	} else {
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`
	}
	if err := s.db.GetContext(ctx, &count, query, name); err != nil {
		return false, apperrors.Wrap(apperrors.ErrorCodeSchema, "checking table "+name, err)
	}
	return count > 0, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	cols := make(map[string]bool)
	if s.driver == "postgres" {
		var names []string
		if err := s.db.SelectContext(ctx, &names,
			`SELECT column_name FROM information_schema.columns WHERE lower(table_name) = lower($1)`, table); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorCodeSchema, "reading columns of "+table, err)
		}
		for _, n := range names {
			cols[strings.ToLower(n)] = true
		}
		return cols, nil
	}

	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeSchema, "reading columns of "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue interface{}
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorCodeSchema, "scanning columns of "+table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
