package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/filehaven/filehaven/config"
	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/jobs"
)

// registerMaintenanceHandlers wires the handlers the daemon itself can
// serve. Domain handlers (indexing, thumbnails, webhooks) are registered
// by the embedding server, not the CLI.
func registerMaintenanceHandlers(registry *jobs.Registry, database *sql.DB, queue *jobs.Queue, cfg *config.Config) {
	registry.Register(&databaseCleanupHandler{
		db:        database,
		queue:     queue,
		retention: time.Duration(cfg.Jobs.RetentionDays) * 24 * time.Hour,
	})
}

// databaseCleanupHandler prunes aged rows from maintenance tables. The
// jobs table goes through the queue's own retention logic; other tables
// get a generic age-based delete keyed on created_at.
type databaseCleanupHandler struct {
	db        *sql.DB
	queue     *jobs.Queue
	retention time.Duration
}

func (h *databaseCleanupHandler) Kind() jobs.Kind { return jobs.KindDatabaseCleanup }

func (h *databaseCleanupHandler) Execute(ctx context.Context, payload jobs.Payload) (*jobs.Result, error) {
	p, ok := payload.(*jobs.DatabaseCleanupPayload)
	if !ok {
		return nil, errors.Newf("unexpected payload type %T", payload)
	}

	if p.Table == "jobs" {
		deleted, err := h.queue.Cleanup(h.retention)
		if err != nil {
			return nil, err
		}
		return jobs.SuccessResult(fmt.Sprintf("deleted %d old jobs", deleted)), nil
	}

	exists, err := h.tableExists(ctx, p.Table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return jobs.FailureResult(fmt.Sprintf("unknown table %q", p.Table)), nil
	}

	cutoff := time.Now().UTC().Add(-h.retention)
	result, err := h.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE created_at < ?`, p.Table), cutoff)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to clean up table %s", p.Table)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	return jobs.SuccessResult(fmt.Sprintf("deleted %d rows from %s", rows, p.Table)), nil
}

func (h *databaseCleanupHandler) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to check table existence")
	}
	return count > 0, nil
}
