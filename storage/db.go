package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ferreirogomes/custodia/apperrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB representa a conexão com o banco (PostgreSQL em produção, SQLite embutido
// em desenvolvimento e testes). As consultas usam "?" e passam por Rebind.
type DB struct {
	*sqlx.DB
	log *zap.Logger
}

// NewDB conecta ao banco e executa as migrações.
func NewDB(driver, dataSourceName string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}
	if driver == "sqlite" {
		// uma única conexão: o banco em memória vive nela e o SQLite serializa escritas
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	log.Info("conexão com o banco estabelecida", zap.String("driver", driver))

	d := &DB{DB: db, log: log}
	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func migrationDialect(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return driver
}

// Migrate aplica as migrações embutidas.
func (d *DB) Migrate() error {
	migrations := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(d.DB.DB, migrationDialect(d.DriverName()), migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		d.log.Info("migrações aplicadas", zap.Int("count", n))
	} else {
		d.log.Debug("nenhuma migração nova para aplicar")
	}
	return nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Newf(apperrors.CodeNotFound, "%s %s não encontrado", entity, id)
	}
	return fmt.Errorf("falha ao buscar %s %s: %w", entity, id, err)
}

// inTx executa fn numa transação, com rollback em caso de erro.
func (d *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", err)
	}
	return nil
}
