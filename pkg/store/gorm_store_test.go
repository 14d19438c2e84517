package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"jstagram/pkg/domain"
)

func dryRunCatalog(t *testing.T, backend string) *GormCatalog {
	t.Helper()
	var dialector gorm.Dialector
	switch backend {
	case BackendPostgres:
		dialector = postgres.New(postgres.Config{DSN: "host=127.0.0.1 user=gallery dbname=gallery sslmode=disable"})
	case BackendMySQL:
		dialector = mysql.New(mysql.Config{DSN: "gallery:gallery@tcp(127.0.0.1:3306)/gallery", SkipInitializeWithVersion: true})
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	db, err := gorm.Open(dialector, &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return NewGormCatalog(db)
}

func listSQL(t *testing.T, c *GormCatalog, q Query) (string, []any) {
	t.Helper()
	var models []PictureModel
	stmt := c.buildQuery(c.db, q).Find(&models).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestGormCatalogOrderClauses(t *testing.T) {
	cases := []struct {
		backend string
		order   domain.SortOrder
		want    string
	}{
		{BackendPostgres, domain.OrderTitleAsc, `ORDER BY title COLLATE "C" ASC, id ASC`},
		{BackendPostgres, domain.OrderTitleDesc, `ORDER BY title COLLATE "C" DESC, id DESC`},
		{BackendPostgres, domain.OrderRandom, "ORDER BY random()"},
		{BackendPostgres, domain.OrderOldest, "ORDER BY id ASC"},
		{BackendPostgres, domain.OrderNewest, "ORDER BY id DESC"},
		{BackendPostgres, "", "ORDER BY id DESC"},
		{BackendMySQL, domain.OrderRandom, "ORDER BY RAND()"},
		{BackendMySQL, domain.OrderTitleAsc, "ORDER BY title COLLATE utf8mb4_bin ASC, id ASC"},
		{BackendMySQL, domain.OrderTitleDesc, "ORDER BY title COLLATE utf8mb4_bin DESC, id DESC"},
	}
	for _, tc := range cases {
		sql, _ := listSQL(t, dryRunCatalog(t, tc.backend), Query{Order: tc.order})
		if !strings.Contains(sql, tc.want) {
			t.Fatalf("%s/%q: expected %q in %q", tc.backend, tc.order, tc.want, sql)
		}
		if !strings.Contains(sql, "LIMIT") {
			t.Fatalf("%s/%q: expected LIMIT in %q", tc.backend, tc.order, sql)
		}
		if strings.Contains(sql, "WHERE") {
			t.Fatalf("%s/%q: unexpected filter in %q", tc.backend, tc.order, sql)
		}
	}
}

func TestGormCatalogTitleFilterIsParameterized(t *testing.T) {
	sql, vars := listSQL(t, dryRunCatalog(t, BackendPostgres), Query{Title: "50%_off", Order: domain.OrderTitleAsc})
	if !strings.Contains(sql, "title LIKE $1") {
		t.Fatalf("expected parameterized LIKE, got %q", sql)
	}
	if strings.Contains(sql, "50") {
		t.Fatalf("filter value leaked into SQL text: %q", sql)
	}
	if len(vars) == 0 || vars[0] != `%50\%\_off%` {
		t.Fatalf("unexpected filter arg: %#v", vars)
	}

	sql, _ = listSQL(t, dryRunCatalog(t, BackendMySQL), Query{Title: "fish"})
	if !strings.Contains(sql, "title LIKE BINARY ?") {
		t.Fatalf("expected case-sensitive mysql LIKE, got %q", sql)
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"fish":   "fish",
		"100%":   `100\%`,
		"a_b":    `a\_b`,
		`back\s`: `back\\s`,
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDialectorForRejectsUnknownBackend(t *testing.T) {
	if _, err := dialectorFor("sqlite", "file.db"); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
	if _, err := dialectorFor(BackendPostgres, " "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

// noConn satisfies gorm.ConnPool; dry-run mode never calls it.
type noConn struct{}

func (noConn) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errors.New("not connected")
}

func (noConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("not connected")
}

func (noConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not connected")
}

func (noConn) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

// recordingPool hands out transactions and counts how they end.
type recordingPool struct {
	noConn
	begun     int
	committed int
	rolled    int
}

func (p *recordingPool) BeginTx(context.Context, *sql.TxOptions) (gorm.ConnPool, error) {
	p.begun++
	return &recordingTx{pool: p}, nil
}

type recordingTx struct {
	noConn
	pool *recordingPool
}

func (t *recordingTx) Commit() error {
	t.pool.committed++
	return nil
}

func (t *recordingTx) Rollback() error {
	t.pool.rolled++
	return nil
}

// statementLog collects every statement gorm renders.
type statementLog struct {
	statements []string
}

func (l *statementLog) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }
func (l *statementLog) Info(context.Context, string, ...any)             {}
func (l *statementLog) Warn(context.Context, string, ...any)             {}
func (l *statementLog) Error(context.Context, string, ...any)            {}

func (l *statementLog) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	l.statements = append(l.statements, sql)
}

func recordingCatalog(t *testing.T, backend string) (*GormCatalog, *recordingPool, *statementLog) {
	t.Helper()
	pool := &recordingPool{}
	var dialector gorm.Dialector
	switch backend {
	case BackendPostgres:
		dialector = postgres.New(postgres.Config{Conn: pool})
	case BackendMySQL:
		dialector = mysql.New(mysql.Config{Conn: pool, SkipInitializeWithVersion: true})
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	log := &statementLog{}
	db, err := gorm.Open(dialector, &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: log})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return NewGormCatalog(db), pool, log
}

func TestGormCatalogRemoveLocksRowInTransaction(t *testing.T) {
	for _, backend := range []string{BackendPostgres, BackendMySQL} {
		t.Run(backend, func(t *testing.T) {
			c, pool, log := recordingCatalog(t, backend)

			// a dry run affects no rows, so the delete reports not found
			if _, err := c.Remove(context.Background(), 7); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from dry run, got %v", err)
			}
			if pool.begun != 1 || pool.rolled != 1 || pool.committed != 0 {
				t.Fatalf("expected one rolled back transaction, got begun=%d rolled=%d committed=%d",
					pool.begun, pool.rolled, pool.committed)
			}
			if len(log.statements) != 2 {
				t.Fatalf("expected select and delete, got %q", log.statements)
			}
			sel, del := log.statements[0], log.statements[1]
			if !strings.HasPrefix(sel, "SELECT") || !strings.HasSuffix(strings.TrimSpace(sel), "FOR UPDATE") {
				t.Fatalf("expected locking select, got %q", sel)
			}
			if !strings.Contains(sel, "7") {
				t.Fatalf("expected id in locking select, got %q", sel)
			}
			if !strings.HasPrefix(del, "DELETE FROM") || !strings.Contains(del, "7") {
				t.Fatalf("expected delete of id 7, got %q", del)
			}
		})
	}
}

func TestGormCatalogInsertSQL(t *testing.T) {
	c, pool, log := recordingCatalog(t, BackendPostgres)
	if _, err := c.Insert(context.Background(), "hello", "abc.png"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(log.statements) != 1 {
		t.Fatalf("expected one statement, got %q", log.statements)
	}
	stmt := log.statements[0]
	if !strings.HasPrefix(stmt, `INSERT INTO "pictures"`) || !strings.Contains(stmt, `RETURNING "id"`) {
		t.Fatalf("unexpected insert %q", stmt)
	}
	if !strings.Contains(stmt, "'hello'") || !strings.Contains(stmt, "'abc.png'") {
		t.Fatalf("expected title and filename in %q", stmt)
	}
	if pool.begun != 1 || pool.committed != 1 {
		t.Fatalf("expected insert in one committed transaction, got begun=%d committed=%d", pool.begun, pool.committed)
	}
}
