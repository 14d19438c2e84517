package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"jstagram/internal/util"
	"jstagram/pkg/domain"
	"jstagram/pkg/storage"
	"jstagram/pkg/store"
)

const (
	CatalogMemory = "memory"
	AssetsLocal   = "local"
	AssetsMinio   = "minio"
)

// DefaultPublicPrefix is the URL path assets are served under.
const DefaultPublicPrefix = "/img/"

// Lifetime of the links handed out by AssetURL.
const assetURLExpiry = 15 * time.Minute

// Config holds runtime configuration for the gallery core. Catalog and Assets
// take precedence over the backend settings when set.
type Config struct {
	Catalog store.Catalog
	Assets  storage.AssetStore

	CatalogBackend string
	DatabaseURL    string
	SeedSamples    bool

	AssetBackend string
	AssetDir     string
	Minio        storage.MinioConfig

	PublicPrefix string
}

// App owns the picture catalog and the asset lifecycle.
type App struct {
	catalog      store.Catalog
	assets       storage.AssetStore
	publicPrefix string
}

// New constructs the application, opening the configured backends.
func New(cfg Config) (*App, error) {
	catalog := cfg.Catalog
	if catalog == nil {
		var err error
		catalog, err = OpenCatalog(cfg)
		if err != nil {
			return nil, err
		}
	}
	assets := cfg.Assets
	if assets == nil {
		var err error
		assets, err = openAssets(cfg)
		if err != nil {
			return nil, err
		}
	}
	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = DefaultPublicPrefix
	}
	return &App{catalog: catalog, assets: assets, publicPrefix: prefix}, nil
}

// Close releases the catalog's database connections, if any.
func (a *App) Close() error {
	if c, ok := a.catalog.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenCatalog opens the catalog backend named by cfg.CatalogBackend.
func OpenCatalog(cfg Config) (store.Catalog, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.CatalogBackend)); backend {
	case "", CatalogMemory:
		var opts []store.MemoryOption
		if cfg.SeedSamples {
			opts = append(opts, store.WithSeed(store.SamplePictures()))
		}
		return store.NewMemoryCatalog(opts...), nil
	case store.BackendPostgres, store.BackendMySQL:
		c, err := store.OpenGormCatalog(backend, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init %s catalog: %w", backend, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

func openAssets(cfg Config) (storage.AssetStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.AssetBackend)) {
	case "", AssetsLocal:
		return storage.NewLocalStore(cfg.AssetDir)
	case AssetsMinio:
		return storage.NewMinioStore(cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown asset backend %q", cfg.AssetBackend)
	}
}

// ListPictures returns at most one page of pictures whose title contains
// title, ordered by the sort token order.
func (a *App) ListPictures(ctx context.Context, title, order string) ([]domain.PictureView, error) {
	pictures, err := a.catalog.Query(ctx, store.Query{
		Title: title,
		Order: domain.ParseSortOrder(order),
	})
	if err != nil {
		return nil, err
	}
	res := make([]domain.PictureView, 0, len(pictures))
	for _, p := range pictures {
		res = append(res, a.view(p))
	}
	return res, nil
}

// UploadPicture moves an incoming file into the asset store and records it.
// The asset is moved before the catalog is touched, so a failed move leaves
// no record behind.
func (a *App) UploadPicture(ctx context.Context, file domain.IncomingFile, title string) (domain.PictureView, error) {
	ctx = context.WithoutCancel(ctx)
	filename := util.NewID() + "." + ExtensionFromMIME(file.MimeType)
	if err := a.assets.Move(ctx, file.TempPath, filename, file.MimeType); err != nil {
		return domain.PictureView{}, &AssetMoveError{Source: file.TempPath, Err: err}
	}
	p, err := a.catalog.Insert(ctx, title, filename)
	if err != nil {
		if rmErr := a.assets.Remove(ctx, filename); rmErr != nil {
			util.LoggerFromContext(ctx).Error("orphaned asset after failed insert",
				"filename", filename, "err", rmErr)
		}
		return domain.PictureView{}, fmt.Errorf("save picture: %w", err)
	}
	return a.view(p), nil
}

// DeletePicture removes the record, then its asset. If the asset cannot be
// removed the record stays deleted and an *AssetDeleteError is returned.
func (a *App) DeletePicture(ctx context.Context, id int64) error {
	ctx = context.WithoutCancel(ctx)
	p, err := a.catalog.Remove(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := a.assets.Remove(ctx, p.Filename); err != nil {
		path := a.assets.Location(p.Filename)
		util.LoggerFromContext(ctx).Warn("picture asset left behind",
			"picture_id", id, "path", path, "err", err)
		return &AssetDeleteError{ID: id, Path: path, Err: err}
	}
	return nil
}

// ServesAssetURLs reports whether the asset store can issue direct links, in
// which case the public prefix redirects to them.
func (a *App) ServesAssetURLs() bool {
	_, ok := a.assets.(storage.Presigner)
	return ok
}

// AssetURL returns a short-lived direct link to the stored file name.
func (a *App) AssetURL(ctx context.Context, name string) (string, error) {
	p, ok := a.assets.(storage.Presigner)
	if !ok {
		return "", ErrNoAssetURLs
	}
	return p.PresignGet(ctx, name, assetURLExpiry)
}

func (a *App) view(p domain.Picture) domain.PictureView {
	return domain.PictureView{
		ID:    p.ID,
		Title: p.Title,
		File:  a.publicPrefix + p.Filename,
	}
}

// ExtensionFromMIME returns the subtype of a type/subtype MIME string, or
// "png" when it has none. The subtype is used verbatim: image/jpeg gives jpeg.
func ExtensionFromMIME(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	_, sub, ok := strings.Cut(strings.TrimSpace(mt), "/")
	sub = strings.TrimSpace(sub)
	if !ok || sub == "" || strings.ContainsAny(sub, `/\`) {
		return "png"
	}
	return sub
}
