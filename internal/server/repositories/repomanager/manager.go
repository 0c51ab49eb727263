// Package repomanager wires repository constructors together and owns schema
// migrations (via goose). Repositories are vended against a dbx.DBTX so the
// same constructors serve both plain connections and transactions.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/resumepress/internal/dbx"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/audit"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/resumes"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/snapshots"
)

type RepositoryManager interface {
	Resumes(db dbx.DBTX) resumes.Repository
	Profiles(db dbx.DBTX) profiles.Repository
	Snapshots(db dbx.DBTX) snapshots.Repository
	Audit(db dbx.DBTX) audit.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
