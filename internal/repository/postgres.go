package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coordinator/internal/apperrors"
	"coordinator/internal/model"
)

// Postgres is a pgx/v5-backed Repository. SQL is hand-written and
// parameterized throughout; no ORM sits between the pool and the query.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and verifies the connection is usable.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Internal("postgres.connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Internal("postgres.ping", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ready(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return apperrors.Internal("postgres.ping", err)
	}
	return nil
}

func (p *Postgres) ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]model.FeatureSet, error) {
	const query = `
		SELECT project, name, version, status,
		       source_type, source_bootstrap_servers, source_topic
		FROM feature_sets
		WHERE project LIKE $1 AND name LIKE $2
		ORDER BY name ASC`

	rows, err := p.pool.Query(ctx, query, model.LikePattern(projectGlob), model.LikePattern(nameGlob))
	if err != nil {
		return nil, apperrors.Internal("postgres.listFeatureSets", err)
	}
	defer rows.Close()

	var out []model.FeatureSet
	for rows.Next() {
		var f model.FeatureSet
		if err := rows.Scan(&f.Project, &f.Name, &f.Version, &f.Status,
			&f.Source.Type, &f.Source.Config.BootstrapServers, &f.Source.Config.Topic); err != nil {
			return nil, apperrors.Internal("postgres.listFeatureSets.scan", err)
		}
		jobStatuses, err := p.loadJobStatuses(ctx, f.Reference())
		if err != nil {
			return nil, err
		}
		f.JobStatuses = jobStatuses
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) loadJobStatuses(ctx context.Context, featureSetRef string) ([]*model.FeatureSetJobStatus, error) {
	const query = `
		SELECT job_id, version, delivery_status
		FROM feature_set_job_statuses
		WHERE feature_set_ref = $1`

	rows, err := p.pool.Query(ctx, query, featureSetRef)
	if err != nil {
		return nil, apperrors.Internal("postgres.loadJobStatuses", err)
	}
	defer rows.Close()

	var out []*model.FeatureSetJobStatus
	for rows.Next() {
		js := &model.FeatureSetJobStatus{FeatureSetRef: featureSetRef}
		if err := rows.Scan(&js.JobID, &js.Version, &js.DeliveryStatus); err != nil {
			return nil, apperrors.Internal("postgres.loadJobStatuses.scan", err)
		}
		out = append(out, js)
	}
	return out, rows.Err()
}

func (p *Postgres) FindCanonicalSource(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig) (model.Source, error) {
	const query = `
		SELECT id, type, bootstrap_servers, topic
		FROM sources
		WHERE type = $1 AND bootstrap_servers = $2 AND topic = $3
		ORDER BY id ASC
		LIMIT 1`

	var s model.Source
	err := p.pool.QueryRow(ctx, query, sourceType, cfg.BootstrapServers, cfg.Topic).
		Scan(&s.ID, &s.Type, &s.Config.BootstrapServers, &s.Config.Topic)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Source{}, apperrors.NotFound("source", string(sourceType)+"|"+cfg.Topic)
		}
		return model.Source{}, apperrors.Internal("postgres.findCanonicalSource", err)
	}
	return s, nil
}

func (p *Postgres) FindLatestNonTerminalJob(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig, storeName string) (model.Job, bool, error) {
	const query = `
		SELECT id, ext_id, runner, status, store_name,
		       source_type, source_bootstrap_servers, source_topic, last_updated
		FROM jobs
		WHERE source_type = $1 AND source_bootstrap_servers = $2 AND source_topic = $3
		  AND store_name = $4 AND status NOT IN ('ABORTED', 'ERROR', 'COMPLETED')
		ORDER BY last_updated DESC
		LIMIT 1`

	var j model.Job
	var lastUpdated time.Time
	err := p.pool.QueryRow(ctx, query, sourceType, cfg.BootstrapServers, cfg.Topic, storeName).Scan(
		&j.ID, &j.ExtID, &j.Runner, &j.Status, &j.Store.Name,
		&j.Source.Type, &j.Source.Config.BootstrapServers, &j.Source.Config.Topic, &lastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Job{}, false, nil
		}
		return model.Job{}, false, apperrors.Internal("postgres.findLatestNonTerminalJob", err)
	}
	j.LastUpdated = lastUpdated.Unix()

	jobStatuses, err := p.loadJobStatusesForJob(ctx, j.ID)
	if err != nil {
		return model.Job{}, false, err
	}
	j.JobStatuses = jobStatuses
	return j, true, nil
}

func (p *Postgres) loadJobStatusesForJob(ctx context.Context, jobID string) ([]*model.FeatureSetJobStatus, error) {
	const query = `
		SELECT feature_set_ref, version, delivery_status
		FROM feature_set_job_statuses
		WHERE job_id = $1`

	rows, err := p.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, apperrors.Internal("postgres.loadJobStatusesForJob", err)
	}
	defer rows.Close()

	var out []*model.FeatureSetJobStatus
	for rows.Next() {
		js := &model.FeatureSetJobStatus{JobID: jobID}
		if err := rows.Scan(&js.FeatureSetRef, &js.Version, &js.DeliveryStatus); err != nil {
			return nil, apperrors.Internal("postgres.loadJobStatusesForJob.scan", err)
		}
		out = append(out, js)
	}
	return out, rows.Err()
}

func (p *Postgres) FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	const query = `
		SELECT id, ext_id, runner, status, store_name,
		       source_type, source_bootstrap_servers, source_topic, last_updated
		FROM jobs
		WHERE status = $1`

	rows, err := p.pool.Query(ctx, query, status)
	if err != nil {
		return nil, apperrors.Internal("postgres.findJobsByStatus", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		var j model.Job
		var lastUpdated time.Time
		if err := rows.Scan(&j.ID, &j.ExtID, &j.Runner, &j.Status, &j.Store.Name,
			&j.Source.Type, &j.Source.Config.BootstrapServers, &j.Source.Config.Topic, &lastUpdated); err != nil {
			return nil, apperrors.Internal("postgres.findJobsByStatus.scan", err)
		}
		j.LastUpdated = lastUpdated.Unix()
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) FindJob(ctx context.Context, jobID string) (model.Job, bool, error) {
	const query = `
		SELECT id, ext_id, runner, status, store_name,
		       source_type, source_bootstrap_servers, source_topic, last_updated
		FROM jobs
		WHERE id = $1`

	var j model.Job
	var lastUpdated time.Time
	err := p.pool.QueryRow(ctx, query, jobID).Scan(&j.ID, &j.ExtID, &j.Runner, &j.Status, &j.Store.Name,
		&j.Source.Type, &j.Source.Config.BootstrapServers, &j.Source.Config.Topic, &lastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Job{}, false, nil
		}
		return model.Job{}, false, apperrors.Internal("postgres.findJob", err)
	}
	j.LastUpdated = lastUpdated.Unix()
	return j, true, nil
}

// SaveAllJobs upserts every job in a single transaction, keeping the batch
// write atomic rather than one statement per row racing independent
// commits.
func (p *Postgres) SaveAllJobs(ctx context.Context, jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal("postgres.saveAllJobs.begin", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO jobs (id, ext_id, runner, status, store_name,
		                   source_type, source_bootstrap_servers, source_topic, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			ext_id = EXCLUDED.ext_id,
			status = EXCLUDED.status,
			last_updated = now()`

	for _, j := range jobs {
		if _, err := tx.Exec(ctx, upsert, j.ID, nullable(j.ExtID), j.Runner, j.Status, j.Store.Name,
			j.Source.Type, j.Source.Config.BootstrapServers, j.Source.Config.Topic); err != nil {
			return apperrors.Internal("postgres.saveAllJobs.exec", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal("postgres.saveAllJobs.commit", err)
	}
	return nil
}

func (p *Postgres) FindFeatureSetsByStatus(ctx context.Context, status model.FeatureSetStatus) ([]model.FeatureSet, error) {
	const query = `
		SELECT project, name, version, status,
		       source_type, source_bootstrap_servers, source_topic
		FROM feature_sets
		WHERE status = $1`

	rows, err := p.pool.Query(ctx, query, status)
	if err != nil {
		return nil, apperrors.Internal("postgres.findFeatureSetsByStatus", err)
	}
	defer rows.Close()

	var out []model.FeatureSet
	for rows.Next() {
		var f model.FeatureSet
		if err := rows.Scan(&f.Project, &f.Name, &f.Version, &f.Status,
			&f.Source.Type, &f.Source.Config.BootstrapServers, &f.Source.Config.Topic); err != nil {
			return nil, apperrors.Internal("postgres.findFeatureSetsByStatus.scan", err)
		}
		jobStatuses, err := p.loadJobStatuses(ctx, f.Reference())
		if err != nil {
			return nil, err
		}
		f.JobStatuses = jobStatuses
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) FindFeatureSet(ctx context.Context, project, name string) (model.FeatureSet, bool, error) {
	const query = `
		SELECT project, name, version, status,
		       source_type, source_bootstrap_servers, source_topic
		FROM feature_sets
		WHERE project = $1 AND name = $2`

	var f model.FeatureSet
	err := p.pool.QueryRow(ctx, query, project, name).Scan(&f.Project, &f.Name, &f.Version, &f.Status,
		&f.Source.Type, &f.Source.Config.BootstrapServers, &f.Source.Config.Topic)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.FeatureSet{}, false, nil
		}
		return model.FeatureSet{}, false, apperrors.Internal("postgres.findFeatureSet", err)
	}

	jobStatuses, err := p.loadJobStatuses(ctx, f.Reference())
	if err != nil {
		return model.FeatureSet{}, false, err
	}
	f.JobStatuses = jobStatuses
	return f, true, nil
}

// SaveFeatureSet upserts the feature set row and replaces its link records
// with the given slice.
func (p *Postgres) SaveFeatureSet(ctx context.Context, fs model.FeatureSet) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal("postgres.saveFeatureSet.begin", err)
	}
	defer tx.Rollback(ctx)

	const upsertFeatureSet = `
		INSERT INTO feature_sets (project, name, version, status,
		                           source_type, source_bootstrap_servers, source_topic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project, name) DO UPDATE SET
			version = EXCLUDED.version,
			status = EXCLUDED.status`

	if _, err := tx.Exec(ctx, upsertFeatureSet, fs.Project, fs.Name, fs.Version, fs.Status,
		fs.Source.Type, fs.Source.Config.BootstrapServers, fs.Source.Config.Topic); err != nil {
		return apperrors.Internal("postgres.saveFeatureSet.exec", err)
	}

	const upsertLink = `
		INSERT INTO feature_set_job_statuses (feature_set_ref, job_id, version, delivery_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (feature_set_ref, job_id) DO UPDATE SET
			version = EXCLUDED.version,
			delivery_status = EXCLUDED.delivery_status`

	ref := fs.Reference()
	for _, js := range fs.JobStatuses {
		if _, err := tx.Exec(ctx, upsertLink, ref, js.JobID, js.Version, js.DeliveryStatus); err != nil {
			return apperrors.Internal("postgres.saveFeatureSet.link", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal("postgres.saveFeatureSet.commit", err)
	}
	return nil
}

// nullable writes empty strings as their zero value rather than forcing
// callers to pass sql.NullString everywhere.
func nullable(v string) string {
	if v == "" {
		return ""
	}
	return v
}

var _ Repository = (*Postgres)(nil)

// schema documents the DDL this repository expects to exist; migrations
// are managed outside the process, so this is reference only.
const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	bootstrap_servers TEXT NOT NULL,
	topic TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS feature_sets (
	project TEXT NOT NULL,
	name TEXT NOT NULL,
	version INT NOT NULL,
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_bootstrap_servers TEXT NOT NULL,
	source_topic TEXT NOT NULL,
	PRIMARY KEY (project, name)
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	ext_id TEXT NOT NULL DEFAULT '',
	runner TEXT NOT NULL,
	status TEXT NOT NULL,
	store_name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_bootstrap_servers TEXT NOT NULL,
	source_topic TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS feature_set_job_statuses (
	feature_set_ref TEXT NOT NULL,
	job_id TEXT NOT NULL,
	version INT NOT NULL,
	delivery_status TEXT NOT NULL,
	PRIMARY KEY (feature_set_ref, job_id)
);
`
