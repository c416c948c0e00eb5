package harvest

import (
	"errors"

	"github.com/okian/harvester/internal/domain/dedupe"
	"github.com/okian/harvester/internal/domain/model"
)

// Error taxonomy of a run. Fetch errors are contained per unit; persistence
// and quota storage errors abort the run.
var (
	// ErrQuotaExhausted stops a run normally; the next run resumes.
	ErrQuotaExhausted = errors.New("daily request quota exhausted")
	// ErrTransientFetch covers network and 5xx failures; retried, then skipped.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrPermanentFetch covers 4xx answers; skipped without retry.
	ErrPermanentFetch = errors.New("permanent fetch failure")
	// ErrQuotaStorage aborts the run when the quota record cannot be written.
	ErrQuotaStorage = errors.New("quota storage failed")
	// ErrBusy rejects a run while another holds the harvester lock.
	ErrBusy = errors.New("harvest already running")

	// Sentinels owned by the model and dedupe packages.
	ErrMalformedRecord  = model.ErrMalformedRecord
	ErrOrphanStat       = dedupe.ErrOrphanStat
	ErrPersistenceWrite = dedupe.ErrPersistenceWrite
)
