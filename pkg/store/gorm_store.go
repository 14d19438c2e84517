package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"jstagram/pkg/domain"
)

const (
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

const (
	migrateLockID   int64 = 73217321
	migrateLockName       = "jstagram_migrate"
)

// GormCatalog implements Catalog on a relational database through GORM.
type GormCatalog struct {
	db *gorm.DB
}

// OpenGormCatalog connects to the database for backend and runs migrations.
func OpenGormCatalog(backend, dsn string) (*GormCatalog, error) {
	dialector, err := dialectorFor(backend, dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	c := NewGormCatalog(db)
	if err := c.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// NewGormCatalog wraps an open connection without migrating.
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// Close closes the underlying connection pool.
func (s *GormCatalog) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(backend, dsn string) (gorm.Dialector, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database URL required")
	}
	switch backend {
	case BackendPostgres:
		return postgres.Open(dsn), nil
	case BackendMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend %q", backend)
	}
}

// Migrate creates or updates the pictures table while holding a
// database-level lock so concurrent instances do not race.
func (s *GormCatalog) Migrate(ctx context.Context) error {
	return s.withMigrationLock(ctx, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&PictureModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	})
}

func (s *GormCatalog) withMigrationLock(ctx context.Context, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()

	lock, unlock := "SELECT pg_advisory_lock($1)", "SELECT pg_advisory_unlock($1)"
	var lockArg any = migrateLockID
	if s.dialect() == BackendMySQL {
		lock, unlock = "SELECT GET_LOCK(?, 30)", "SELECT RELEASE_LOCK(?)"
		lockArg = migrateLockName
	}
	if err := execLock(ctx, conn, lock, lockArg); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execLock(ctx, conn, unlock, lockArg)
	}()
	return fn(s.db.WithContext(ctx))
}

func execLock(ctx context.Context, conn *sql.Conn, query string, arg any) error {
	_, err := conn.ExecContext(ctx, query, arg)
	return err
}

func (s *GormCatalog) dialect() string {
	return s.db.Dialector.Name()
}

// Query runs a filtered, ordered and capped select.
func (s *GormCatalog) Query(ctx context.Context, q Query) ([]domain.Picture, error) {
	var models []PictureModel
	if err := s.buildQuery(s.db.WithContext(ctx), q).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list pictures: %w", err)
	}
	res := make([]domain.Picture, 0, len(models))
	for _, m := range models {
		res = append(res, pictureFromModel(m))
	}
	return res, nil
}

func (s *GormCatalog) buildQuery(tx *gorm.DB, q Query) *gorm.DB {
	tx = tx.Model(&PictureModel{})
	if q.Title != "" {
		tx = tx.Where(s.titleContains(), "%"+escapeLike(q.Title)+"%")
	}
	return tx.Order(s.orderBy(q.Order)).Limit(domain.PageSize)
}

// titleContains matches case-sensitively on both dialects.
func (s *GormCatalog) titleContains() string {
	if s.dialect() == BackendMySQL {
		return "title LIKE BINARY ?"
	}
	return "title LIKE ?"
}

// binaryTitle sorts titles by code point rather than the column's locale
// collation, so both dialects order like the in-memory catalog.
func (s *GormCatalog) binaryTitle() string {
	if s.dialect() == BackendMySQL {
		return "title COLLATE utf8mb4_bin"
	}
	return `title COLLATE "C"`
}

func (s *GormCatalog) orderBy(order domain.SortOrder) string {
	switch order {
	case domain.OrderTitleAsc:
		return s.binaryTitle() + " ASC, id ASC"
	case domain.OrderTitleDesc:
		return s.binaryTitle() + " DESC, id DESC"
	case domain.OrderRandom:
		if s.dialect() == BackendMySQL {
			return "RAND()"
		}
		return "random()"
	case domain.OrderOldest:
		return "id ASC"
	default:
		return "id DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Insert creates a row and returns it with the database-issued id.
func (s *GormCatalog) Insert(ctx context.Context, title, filename string) (domain.Picture, error) {
	model := pictureToModel(domain.Picture{
		Title:     title,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	})
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Picture{}, fmt.Errorf("insert picture: %w", err)
	}
	return pictureFromModel(model), nil
}

// Remove locks and deletes the row in one transaction so concurrent removals
// of the same id see ErrNotFound.
func (s *GormCatalog) Remove(ctx context.Context, id int64) (domain.Picture, error) {
	var removed PictureModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&removed, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		res := tx.Delete(&PictureModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Picture{}, ErrNotFound
		}
		return domain.Picture{}, fmt.Errorf("delete picture: %w", err)
	}
	return pictureFromModel(removed), nil
}
