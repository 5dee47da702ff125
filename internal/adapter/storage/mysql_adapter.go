package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/pos-backoffice/internal/port"
)

const mysqlDuplicateEntry = 1062

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var _ port.TransactionScope = (*MySQLAdapter)(nil)

// Execute runs fn inside one database transaction.
func (m *MySQLAdapter) Execute(ctx context.Context, fn func(repos port.Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlRepositories{q: tx, locking: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Repositories returns repositories bound to the connection pool, outside
// any transaction. Suitable for reads.
func (m *MySQLAdapter) Repositories() port.Repositories {
	return &mysqlRepositories{q: m.db}
}

// locking repositories read order rows with FOR UPDATE so a status check
// holds until the transaction ends.
type mysqlRepositories struct {
	q       queryer
	locking bool
}

func (r *mysqlRepositories) Inventory() port.InventoryRepository { return &mysqlInventoryRepo{q: r.q} }
func (r *mysqlRepositories) Orders() port.OrderRepository {
	return &mysqlOrderRepo{q: r.q, locking: r.locking}
}
func (r *mysqlRepositories) Products() port.ProductRepository { return &mysqlProductRepo{q: r.q} }
func (r *mysqlRepositories) Clients() port.ClientRepository   { return &mysqlClientRepo{q: r.q} }

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rowPlaceholders returns n groups of "(?, ?, ...)" with width arguments each.
func rowPlaceholders(n, width int) string {
	group := "(" + placeholders(width) + ")"
	groups := make([]string, n)
	for i := range groups {
		groups[i] = group
	}
	return strings.Join(groups, ", ")
}
