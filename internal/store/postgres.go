package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuecode/cuecode/internal/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PoolConfig holds the connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore stores records in PostgreSQL with the pgvector extension.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger.Named("postgres-store")}
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{tx: tx, logger: s.logger}, nil
}

func (s *PostgresStore) GetSpecification(ctx context.Context, id uuid.UUID) (*entity.Specification, error) {
	query := `
		SELECT openapi_spec_id, cuecode_config_id, spec_text, base_url
		FROM openapi_spec
		WHERE openapi_spec_id = $1`

	var spec entity.Specification
	err := s.pool.QueryRow(ctx, query, id).Scan(&spec.ID, &spec.ConfigurationID, &spec.Text, &spec.BaseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("specification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get specification: %w", err)
	}
	return &spec, nil
}

func (s *PostgresStore) GetPath(ctx context.Context, id uuid.UUID) (*entity.Path, error) {
	query := `
		SELECT openapi_path_id, spec_id, url_templated, position
		FROM openapi_path
		WHERE openapi_path_id = $1`

	var p entity.Path
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.SpecID, &p.Templated, &p.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("path %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get path: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetOperation(ctx context.Context, id uuid.UUID) (*entity.Operation, error) {
	query := `
		SELECT openapi_operation_id, oa_path_id, oa_server_id, http_verb,
		       selection_prompt, tool_name, llm_content_gen_tool_call_spec
		FROM openapi_operation
		WHERE openapi_operation_id = $1`

	var (
		op       entity.Operation
		toolCall []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&op.ID, &op.PathID, &op.ServerID, &op.Verb, &op.SelectionPrompt, &op.ToolName, &toolCall)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	op.ToolCall = toolCall
	return &op, nil
}

func (s *PostgresStore) SearchPrompts(ctx context.Context, specID uuid.UUID, vector []float32, limit int) ([]PromptMatch, error) {
	query := `
		SELECT 1 - (sp.selection_prompt_embedding <=> $1::vector) AS similarity,
		       sp.openapi_operation_selection_prompt_id, o.openapi_operation_id,
		       o.oa_path_id, o.oa_server_id, o.http_verb, sp.selection_prompt,
		       o.tool_name, o.llm_content_gen_tool_call_spec
		FROM openapi_operation_selection_prompt sp
		JOIN openapi_operation o ON sp.openapi_operation_id = o.openapi_operation_id
		JOIN openapi_server s ON s.openapi_server_id = o.oa_server_id
		WHERE s.spec_id = $2
		  AND sp.selection_prompt_embedding IS NOT NULL
		ORDER BY sp.selection_prompt_embedding <=> $1::vector, sp.openapi_operation_selection_prompt_id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), specID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search selection prompts: %w", err)
	}
	defer rows.Close()

	var matches []PromptMatch
	for rows.Next() {
		var (
			m        PromptMatch
			toolCall []byte
		)
		if err := rows.Scan(&m.Similarity, &m.PromptID, &m.OperationID, &m.PathID, &m.ServerID,
			&m.Verb, &m.Prompt, &m.ToolName, &toolCall); err != nil {
			return nil, fmt.Errorf("failed to scan selection prompt: %w", err)
		}
		m.ToolCall = toolCall
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selection prompts: %w", err)
	}
	return matches, nil
}

type postgresTx struct {
	tx     pgx.Tx
	logger *zap.Logger
}

// exec runs one upsert inside a savepoint. A unique violation rolls back
// the savepoint and is logged; the surrounding transaction stays usable.
func (t *postgresTx) exec(ctx context.Context, table string, id uuid.UUID, query string, args ...any) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if _, err := sp.Exec(ctx, query, args...); err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			t.logger.Warn("skipping conflicting record",
				zap.String("table", table),
				zap.String("id", id.String()),
				zap.String("constraint", pgErr.ConstraintName))
			return nil
		}
		return fmt.Errorf("failed to upsert %s %s: %w", table, id, err)
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// DeleteSpecification relies on ON DELETE CASCADE to remove the servers,
// paths, operations, prompts and nouns of the specification.
func (t *postgresTx) DeleteSpecification(ctx context.Context, specID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM openapi_spec WHERE openapi_spec_id = $1`, specID)
	if err != nil {
		return fmt.Errorf("failed to delete specification %s: %w", specID, err)
	}
	t.logger.Debug("deleted specification",
		zap.String("id", specID.String()),
		zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (t *postgresTx) UpsertSpecification(ctx context.Context, spec *entity.Specification) error {
	query := `
		INSERT INTO openapi_spec (openapi_spec_id, cuecode_config_id, spec_text, base_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (openapi_spec_id) DO UPDATE SET
			cuecode_config_id = EXCLUDED.cuecode_config_id,
			spec_text = EXCLUDED.spec_text,
			base_url = EXCLUDED.base_url,
			updated_at = now()`
	return t.exec(ctx, "openapi_spec", spec.ID, query, spec.ID, spec.ConfigurationID, spec.Text, spec.BaseURL)
}

func (t *postgresTx) UpsertServer(ctx context.Context, server *entity.Server) error {
	query := `
		INSERT INTO openapi_server (openapi_server_id, spec_id, base_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (openapi_server_id) DO UPDATE SET
			spec_id = EXCLUDED.spec_id,
			base_url = EXCLUDED.base_url`
	return t.exec(ctx, "openapi_server", server.ID, query, server.ID, server.SpecID, server.URL)
}

func (t *postgresTx) UpsertPath(ctx context.Context, path *entity.Path) error {
	query := `
		INSERT INTO openapi_path (openapi_path_id, spec_id, url_templated, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (openapi_path_id) DO UPDATE SET
			spec_id = EXCLUDED.spec_id,
			url_templated = EXCLUDED.url_templated,
			position = EXCLUDED.position`
	return t.exec(ctx, "openapi_path", path.ID, query, path.ID, path.SpecID, path.Templated, path.Position)
}

func (t *postgresTx) UpsertOperation(ctx context.Context, op *entity.Operation) error {
	query := `
		INSERT INTO openapi_operation (openapi_operation_id, oa_server_id, oa_path_id, http_verb,
			selection_prompt, tool_name, llm_content_gen_tool_call_spec)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (openapi_operation_id) DO UPDATE SET
			oa_server_id = EXCLUDED.oa_server_id,
			oa_path_id = EXCLUDED.oa_path_id,
			http_verb = EXCLUDED.http_verb,
			selection_prompt = EXCLUDED.selection_prompt,
			tool_name = EXCLUDED.tool_name,
			llm_content_gen_tool_call_spec = EXCLUDED.llm_content_gen_tool_call_spec`

	var toolCall []byte
	if len(op.ToolCall) > 0 {
		toolCall = op.ToolCall
	}
	return t.exec(ctx, "openapi_operation", op.ID, query,
		op.ID, op.ServerID, op.PathID, op.Verb, op.SelectionPrompt, op.ToolName, toolCall)
}

func (t *postgresTx) UpsertSelectionPrompt(ctx context.Context, prompt *entity.SelectionPrompt) error {
	query := `
		INSERT INTO openapi_operation_selection_prompt (openapi_operation_selection_prompt_id,
			openapi_operation_id, position, selection_prompt, selection_prompt_embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
		ON CONFLICT (openapi_operation_selection_prompt_id) DO UPDATE SET
			openapi_operation_id = EXCLUDED.openapi_operation_id,
			position = EXCLUDED.position,
			selection_prompt = EXCLUDED.selection_prompt,
			selection_prompt_embedding = COALESCE(EXCLUDED.selection_prompt_embedding,
				openapi_operation_selection_prompt.selection_prompt_embedding)`

	var embedding any
	if len(prompt.Embedding) > 0 {
		embedding = pgvector.NewVector(prompt.Embedding)
	}
	return t.exec(ctx, "openapi_operation_selection_prompt", prompt.ID, query,
		prompt.ID, prompt.OperationID, prompt.Position, prompt.Text, embedding)
}

func (t *postgresTx) UpsertNoun(ctx context.Context, noun *entity.Noun) error {
	query := `
		INSERT INTO openapi_entity (openapi_entity_id, contained_in_oa_spec_id, noun_prompt)
		VALUES ($1, $2, $3)
		ON CONFLICT (openapi_entity_id) DO UPDATE SET
			contained_in_oa_spec_id = EXCLUDED.contained_in_oa_spec_id,
			noun_prompt = EXCLUDED.noun_prompt`
	return t.exec(ctx, "openapi_entity", noun.ID, query, noun.ID, noun.SpecID, noun.Prompt)
}

func (t *postgresTx) ListSelectionPrompts(ctx context.Context, specID uuid.UUID) ([]entity.SelectionPrompt, error) {
	query := `
		SELECT sp.openapi_operation_selection_prompt_id, sp.openapi_operation_id,
		       sp.position, sp.selection_prompt
		FROM openapi_operation_selection_prompt sp
		JOIN openapi_operation o ON sp.openapi_operation_id = o.openapi_operation_id
		JOIN openapi_server s ON s.openapi_server_id = o.oa_server_id
		WHERE s.spec_id = $1
		ORDER BY sp.openapi_operation_id, sp.openapi_operation_selection_prompt_id`

	rows, err := t.tx.Query(ctx, query, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selection prompts: %w", err)
	}
	defer rows.Close()

	var prompts []entity.SelectionPrompt
	for rows.Next() {
		var p entity.SelectionPrompt
		if err := rows.Scan(&p.ID, &p.OperationID, &p.Position, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan selection prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selection prompts: %w", err)
	}
	return prompts, nil
}

func (t *postgresTx) SetPromptEmbedding(ctx context.Context, promptID uuid.UUID, embedding []float32) error {
	query := `
		UPDATE openapi_operation_selection_prompt
		SET selection_prompt_embedding = $2::vector
		WHERE openapi_operation_selection_prompt_id = $1`

	tag, err := t.tx.Exec(ctx, query, promptID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("selection prompt %s: %w", promptID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is safe to call after Commit.
func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
