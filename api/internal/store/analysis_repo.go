package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"scan-viewer/api/internal/vlm/types"
)

var ErrNotFound = sql.ErrNoRows

// CacheKey identifies one analysis: the same bytes analysed by the same model
// at the same sensitivity.
type CacheKey struct {
	MediaHash   string
	Engine      string
	Model       string
	Sensitivity types.Sensitivity
}

type AnalysisRepo struct{ DB *sql.DB }

func NewAnalysisRepo(db *sql.DB) *AnalysisRepo { return &AnalysisRepo{DB: db} }

// Find returns the cached result. Rows older than maxAge (when maxAge > 0) and
// rows that no longer decode are reported as ErrNotFound.
func (r *AnalysisRepo) Find(ctx context.Context, k CacheKey, maxAge time.Duration) (types.AnalysisResult, error) {
	const q = `select result_json, created_at
	           from analysis_cache
	           where media_hash=$1 and engine=$2 and model=$3 and sensitivity=$4`
	var (
		js []byte
		ts time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, k.MediaHash, k.Engine, k.Model, string(k.Sensitivity)).Scan(&js, &ts); err != nil {
		return types.AnalysisResult{}, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return types.AnalysisResult{}, ErrNotFound
	}
	res, err := types.DecodeAnalysis(string(js))
	if err != nil {
		return types.AnalysisResult{}, ErrNotFound
	}
	return res, nil
}

// Upsert stores res under k, refreshing created_at.
func (r *AnalysisRepo) Upsert(ctx context.Context, k CacheKey, res types.AnalysisResult) error {
	if k.MediaHash == "" {
		return errors.New("store: empty media hash")
	}
	js, err := json.Marshal(res)
	if err != nil {
		return err
	}
	const q = `
insert into analysis_cache(media_hash, engine, model, sensitivity, result_json)
values ($1,$2,$3,$4,$5)
on conflict (media_hash, engine, model, sensitivity)
do update set result_json=excluded.result_json, created_at=now()`
	_, err = r.DB.ExecContext(ctx, q, k.MediaHash, k.Engine, k.Model, string(k.Sensitivity), js)
	return err
}

// Purge deletes rows older than maxAge and returns how many were removed.
func (r *AnalysisRepo) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `delete from analysis_cache where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
