package connpool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver, registered for side effects

	"github.com/corepool/dbpool/pkg/poolcfg"
)

// DataSource is the data-source factory consumed by the pool manager (spec
// §6: "exposes get_common_connection() returning a physical connection
// handle"). GetConnection opens exactly one physical connection.
type DataSource interface {
	GetConnection(ctx context.Context) (*sql.DB, error)
	Name() string
}

// sqlDataSource opens connections through database/sql against a
// poolcfg.PoolConfig's driver/DSN. Each returned *sql.DB is pinned to a
// single physical connection (MaxOpenConns=1) so it maps 1:1 onto a
// ConnectionProxy, matching the teacher's approach of using database/sql
// itself as the single-connection handle rather than reimplementing a
// wire-level client.
type sqlDataSource struct {
	cfg *poolcfg.PoolConfig
}

// NewSQLDataSource builds a DataSource backed by database/sql for cfg.
func NewSQLDataSource(cfg *poolcfg.PoolConfig) DataSource {
	return &sqlDataSource{cfg: cfg}
}

func (s *sqlDataSource) Name() string { return s.cfg.Name }

func (s *sqlDataSource) GetConnection(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(s.cfg.Driver, s.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // the pool manager governs lifetime, not database/sql.

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
