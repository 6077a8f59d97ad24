package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/forgehook/forgehostd/pkg/model"
)

// PostgresConfig configures connection pooling for the Postgres-backed
// store.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane connection pool defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Postgres is a Store backed by a Postgres-compatible database via
// database/sql and lib/pq, storing nested structures (manifest, config,
// steps) as JSON columns.
type Postgres struct {
	db *sql.DB
}

// NewPostgresFromDSN opens a connection pool against dsn and verifies it is
// reachable before returning.
func NewPostgresFromDSN(dsn string, cfg *PostgresConfig) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error { return s.db.Close() }

func (s *Postgres) UpsertHook(ctx context.Context, i *model.HookInstance) error {
	if i == nil || i.InstanceID == "" {
		return fmt.Errorf("instance is required")
	}
	manifest, err := json.Marshal(i.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	cfg, err := json.Marshal(i.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	env, err := json.Marshal(i.Environment)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hook_instances (
			instance_id, hook_id, runtime, manifest, status, health_status,
			last_health_check_at, error, started_at, stopped_at, last_updated_at,
			container_id, container_name, host_port, module_loaded, invocation_count,
			base_url, installed_version, previous_version, previous_image_tag,
			config, environment
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (instance_id) DO UPDATE SET
			status = EXCLUDED.status, health_status = EXCLUDED.health_status,
			last_health_check_at = EXCLUDED.last_health_check_at, error = EXCLUDED.error,
			started_at = EXCLUDED.started_at, stopped_at = EXCLUDED.stopped_at,
			last_updated_at = EXCLUDED.last_updated_at, container_id = EXCLUDED.container_id,
			container_name = EXCLUDED.container_name, host_port = EXCLUDED.host_port,
			module_loaded = EXCLUDED.module_loaded, invocation_count = EXCLUDED.invocation_count,
			base_url = EXCLUDED.base_url, installed_version = EXCLUDED.installed_version,
			previous_version = EXCLUDED.previous_version, previous_image_tag = EXCLUDED.previous_image_tag,
			config = EXCLUDED.config, environment = EXCLUDED.environment`,
		i.InstanceID, i.HookID, i.Runtime, manifest, i.Status, i.HealthStatus,
		i.LastHealthCheckAt, i.Error, i.StartedAt, i.StoppedAt, i.LastUpdatedAt,
		i.ContainerID, i.ContainerName, i.HostPort, i.ModuleLoaded, i.InvocationCount,
		i.BaseURL, i.InstalledVersion, i.PreviousVersion, i.PreviousImageTag,
		cfg, env,
	)
	if err != nil {
		return fmt.Errorf("upsert hook instance: %w", err)
	}
	return nil
}

func scanHookInstance(row interface {
	Scan(dest ...any) error
}) (*model.HookInstance, error) {
	var i model.HookInstance
	var manifest, cfg, env []byte
	if err := row.Scan(
		&i.InstanceID, &i.HookID, &i.Runtime, &manifest, &i.Status, &i.HealthStatus,
		&i.LastHealthCheckAt, &i.Error, &i.StartedAt, &i.StoppedAt, &i.LastUpdatedAt,
		&i.ContainerID, &i.ContainerName, &i.HostPort, &i.ModuleLoaded, &i.InvocationCount,
		&i.BaseURL, &i.InstalledVersion, &i.PreviousVersion, &i.PreviousImageTag,
		&cfg, &env,
	); err != nil {
		return nil, err
	}
	if len(manifest) > 0 {
		if err := json.Unmarshal(manifest, &i.Manifest); err != nil {
			return nil, fmt.Errorf("unmarshal manifest: %w", err)
		}
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &i.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(env) > 0 {
		if err := json.Unmarshal(env, &i.Environment); err != nil {
			return nil, fmt.Errorf("unmarshal environment: %w", err)
		}
	}
	return &i, nil
}

const hookColumns = `instance_id, hook_id, runtime, manifest, status, health_status,
	last_health_check_at, error, started_at, stopped_at, last_updated_at,
	container_id, container_name, host_port, module_loaded, invocation_count,
	base_url, installed_version, previous_version, previous_image_tag,
	config, environment`

func (s *Postgres) GetHook(ctx context.Context, instanceID string) (*model.HookInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hookColumns+` FROM hook_instances WHERE instance_id = $1`, instanceID)
	i, err := scanHookInstance(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hook instance: %w", err)
	}
	return i, nil
}

func (s *Postgres) GetHookByHookID(ctx context.Context, hookID string) (*model.HookInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hookColumns+` FROM hook_instances WHERE hook_id = $1`, hookID)
	i, err := scanHookInstance(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hook instance by hook id: %w", err)
	}
	return i, nil
}

func (s *Postgres) ListHooks(ctx context.Context) ([]*model.HookInstance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+hookColumns+` FROM hook_instances ORDER BY instance_id`)
	if err != nil {
		return nil, fmt.Errorf("list hook instances: %w", err)
	}
	defer rows.Close()
	var out []*model.HookInstance
	for rows.Next() {
		i, err := scanHookInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hook instance: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteHook(ctx context.Context, instanceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hook_instances WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete hook instance: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UsedPorts(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host_port FROM hook_instances WHERE host_port IS NOT NULL AND host_port != 0`)
	if err != nil {
		return nil, fmt.Errorf("used ports: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendEvent(ctx context.Context, e model.LifecycleEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (type, instance_id, at, data) VALUES ($1,$2,$3,$4)`,
		e.Type, e.InstanceID, e.At, data)
	if err != nil {
		return fmt.Errorf("append lifecycle event: %w", err)
	}
	return nil
}

func (s *Postgres) AppendUpdateHistory(ctx context.Context, h model.UpdateHistory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO update_history (instance_id, from_version, to_version, update_type, success, error, at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.InstanceID, h.FromVersion, h.ToVersion, h.UpdateType, h.Success, h.Error, h.At)
	if err != nil {
		return fmt.Errorf("append update history: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateHistory(ctx context.Context, instanceID string) ([]model.UpdateHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, from_version, to_version, update_type, success, error, at
		 FROM update_history WHERE instance_id = $1 ORDER BY at ASC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("update history: %w", err)
	}
	defer rows.Close()
	var out []model.UpdateHistory
	for rows.Next() {
		var h model.UpdateHistory
		if err := rows.Scan(&h.InstanceID, &h.FromVersion, &h.ToVersion, &h.UpdateType, &h.Success, &h.Error, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Postgres) UpsertAgent(ctx context.Context, a *model.Agent) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, slug, name, description, provider, model, system_prompt,
			tool_hook_ids, config, is_public, created_by, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug, name = EXCLUDED.name, description = EXCLUDED.description,
			provider = EXCLUDED.provider, model = EXCLUDED.model, system_prompt = EXCLUDED.system_prompt,
			tool_hook_ids = EXCLUDED.tool_hook_ids, config = EXCLUDED.config,
			is_public = EXCLUDED.is_public, updated_at = EXCLUDED.updated_at, deleted_at = EXCLUDED.deleted_at`,
		a.ID, a.Slug, a.Name, a.Description, a.Provider, a.Model, a.SystemPrompt,
		pqArray(a.ToolHookIDs), cfg, a.IsPublic, a.CreatedBy, a.CreatedAt, a.UpdatedAt, a.DeletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *Postgres) GetAgent(ctx context.Context, idOrSlug string) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, provider, model, system_prompt, tool_hook_ids,
			config, is_public, created_by, created_at, updated_at, deleted_at
		FROM agents WHERE id = $1 OR slug = $1`, idOrSlug)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func scanAgent(row interface{ Scan(dest ...any) error }) (*model.Agent, error) {
	var a model.Agent
	var toolHookIDs []string
	var cfg []byte
	if err := row.Scan(&a.ID, &a.Slug, &a.Name, &a.Description, &a.Provider, &a.Model,
		&a.SystemPrompt, pqArrayScan(&toolHookIDs), &cfg, &a.IsPublic, &a.CreatedBy,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt); err != nil {
		return nil, err
	}
	a.ToolHookIDs = toolHookIDs
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &a.Config); err != nil {
			return nil, fmt.Errorf("unmarshal agent config: %w", err)
		}
	}
	return &a, nil
}

func (s *Postgres) ListAgents(ctx context.Context, opts AgentListOptions) ([]*model.Agent, error) {
	query := `SELECT id, slug, name, description, provider, model, system_prompt, tool_hook_ids,
		config, is_public, created_by, created_at, updated_at, deleted_at
		FROM agents WHERE deleted_at IS NULL`
	if !opts.IncludePrivate {
		query += ` AND is_public = true`
	}
	query += ` ORDER BY created_at DESC`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()
	var out []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) SoftDeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET deleted_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft delete agent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateRun(ctx context.Context, r *model.AgentRun) error {
	return s.writeRun(ctx, r, true)
}

func (s *Postgres) FinalizeRun(ctx context.Context, r *model.AgentRun) error {
	return s.writeRun(ctx, r, false)
}

func (s *Postgres) writeRun(ctx context.Context, r *model.AgentRun, insert bool) error {
	inputData, err := json.Marshal(r.InputData)
	if err != nil {
		return fmt.Errorf("marshal input data: %w", err)
	}
	output, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	if insert {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO agent_runs (id, agent_id, input_text, input_data, output, output_text,
				steps, total_steps, tokens_input, tokens_output, duration_ms, status, error_message,
				created_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			r.ID, r.AgentID, r.InputText, inputData, output, r.OutputText, steps, r.TotalSteps,
			r.TokensInput, r.TokensOutput, r.DurationMs, r.Status, r.ErrorMessage, r.CreatedAt, r.CompletedAt)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE agent_runs SET output = $2, output_text = $3, steps = $4, total_steps = $5,
				tokens_input = $6, tokens_output = $7, duration_ms = $8, status = $9,
				error_message = $10, completed_at = $11
			WHERE id = $1`,
			r.ID, output, r.OutputText, steps, r.TotalSteps, r.TokensInput, r.TokensOutput,
			r.DurationMs, r.Status, r.ErrorMessage, r.CompletedAt)
	}
	if err != nil {
		return fmt.Errorf("write agent run: %w", err)
	}
	return nil
}

func scanRun(row interface{ Scan(dest ...any) error }) (*model.AgentRun, error) {
	var r model.AgentRun
	var inputData, output, steps []byte
	if err := row.Scan(&r.ID, &r.AgentID, &r.InputText, &inputData, &output, &r.OutputText,
		&steps, &r.TotalSteps, &r.TokensInput, &r.TokensOutput, &r.DurationMs, &r.Status,
		&r.ErrorMessage, &r.CreatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	if len(inputData) > 0 {
		_ = json.Unmarshal(inputData, &r.InputData)
	}
	if len(output) > 0 {
		_ = json.Unmarshal(output, &r.Output)
	}
	if len(steps) > 0 {
		_ = json.Unmarshal(steps, &r.Steps)
	}
	return &r, nil
}

const runColumns = `id, agent_id, input_text, input_data, output, output_text, steps,
	total_steps, tokens_input, tokens_output, duration_ms, status, error_message, created_at, completed_at`

func (s *Postgres) GetRun(ctx context.Context, id string) (*model.AgentRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *Postgres) RunsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*model.AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE agent_id = $1 ORDER BY created_at DESC`
	args := []any{agentID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryRuns(ctx, query, args...)
}

func (s *Postgres) RecentRuns(ctx context.Context, limit int) ([]*model.AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRuns(ctx, query, args...)
}

func (s *Postgres) queryRuns(ctx context.Context, query string, args ...any) ([]*model.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []*model.AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
