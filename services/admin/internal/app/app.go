package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tobiascms/internal/util"
	"tobiascms/pkg/asset"
	"tobiascms/pkg/auth"
	"tobiascms/pkg/channel"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/storage"
	"tobiascms/pkg/store"
	"tobiascms/pkg/sync"
)

// Config holds runtime configuration for the core application.
type Config struct {
	StoreDriver string
	DatabaseURL string

	ChannelDriver string
	RedisAddr     string
	RedisPassword string
	AMQPURL       string

	BlobDriver     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioPublicURL string
	MinioUseSSL    bool

	MaxUploadBytes int64
	SubscribeDelay time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	// Injectable for tests.
	Records store.RecordStore
	Blobs   storage.BlobStore
	Channel channel.Channel
}

// App owns the per-table synchronizers, the two singleton documents,
// and their change bridges. It is created at session start and torn
// down on shutdown.
type App struct {
	records store.RecordStore
	blobs   storage.BlobStore
	channel channel.Channel
	assets  *asset.Pipeline

	users *sync.Synchronizer[domain.SiteUser]

	resources map[string]*Resource
	documents map[string]*Document
	bridges   map[string]*sync.Bridge
	loaders   map[string]loader

	bootstrapEmail    string
	bootstrapPassword string
}

// New constructs the application and wires every collection.
func New(cfg Config) (*App, error) {
	ch := cfg.Channel
	if ch == nil {
		var err error
		ch, err = newChannel(cfg)
		if err != nil {
			return nil, err
		}
	}
	records := cfg.Records
	if records == nil {
		var err error
		records, err = newRecordStore(cfg, ch)
		if err != nil {
			return nil, err
		}
	}
	blobs := cfg.Blobs
	if blobs == nil {
		var err error
		blobs, err = newBlobStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	pipeline := asset.NewPipeline(asset.Config{MaxBytes: cfg.MaxUploadBytes}, blobs, nil)

	a := &App{
		records:           records,
		blobs:             blobs,
		channel:           ch,
		assets:            pipeline,
		resources:         make(map[string]*Resource),
		documents:         make(map[string]*Document),
		bridges:           make(map[string]*sync.Bridge),
		loaders:           make(map[string]loader),
		bootstrapEmail:    strings.TrimSpace(cfg.BootstrapAdminEmail),
		bootstrapPassword: cfg.BootstrapAdminPassword,
	}

	delay := cfg.SubscribeDelay

	registerCollection[domain.Service](a, domain.TableServices, delay)
	registerCollection[domain.Product](a, domain.TableProducts, delay)
	registerCollection[domain.Perfume](a, domain.TablePerfumes, delay)
	registerCollection[domain.Course](a, domain.TableCourses, delay)
	registerCollection[domain.GalleryItem](a, domain.TableGallery, delay)
	registerCollection[domain.Testimonial](a, domain.TableTestimonials, delay)
	registerCollection[domain.Category](a, domain.TableCategories, delay)
	a.users = registerCollection[domain.SiteUser](a, domain.TableUsers, delay)

	registerSingleton[domain.HeroContent](a, domain.TableHero, domain.HeroID, delay)
	registerSingleton[domain.AboutContent](a, domain.TableAbout, domain.AboutID, delay)

	a.sanitizeUserResource()

	return a, nil
}

// sanitizeUserResource strips password hashes from every user record
// leaving the process over HTTP. The hash stays intact in the
// collection so login keeps working.
func (a *App) sanitizeUserResource() {
	res := a.resources[domain.TableUsers]
	res.List = func() any {
		users := a.users.Collection().Snapshot()
		for i := range users {
			users[i].PasswordHash = ""
		}
		return users
	}
	strip := func(v any, err error) (any, error) {
		if u, ok := v.(domain.SiteUser); ok {
			u.PasswordHash = ""
			return u, err
		}
		return v, err
	}
	innerAdd, innerUpdate := res.Add, res.Update
	res.Add = func(ctx context.Context, payload []byte, file *asset.File) (any, error) {
		return strip(innerAdd(ctx, payload, file))
	}
	res.Update = func(ctx context.Context, id string, patch map[string]any, file *asset.File) (any, error) {
		return strip(innerUpdate(ctx, id, patch, file))
	}
}

func newChannel(cfg Config) (channel.Channel, error) {
	switch cfg.ChannelDriver {
	case "", "local":
		return channel.NewLocalChannel(), nil
	case "redis":
		return channel.NewRedisChannel(cfg.RedisAddr, cfg.RedisPassword, "")
	case "amqp":
		return channel.NewAMQPChannel(cfg.AMQPURL, "")
	default:
		return nil, fmt.Errorf("unknown channel driver %q", cfg.ChannelDriver)
	}
}

func newRecordStore(cfg Config, notifier channel.Channel) (store.RecordStore, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return store.NewMemoryStore(notifier), nil
	case "postgres":
		s, err := store.NewGormStore(cfg.DatabaseURL, allTables(), notifier)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newBlobStore(cfg Config) (storage.BlobStore, error) {
	switch cfg.BlobDriver {
	case "", "memory":
		return storage.NewMemoryBlobStore(), nil
	case "minio":
		s, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

func allTables() []string {
	return []string{
		domain.TableServices, domain.TableProducts, domain.TablePerfumes,
		domain.TableCourses, domain.TableGallery, domain.TableTestimonials,
		domain.TableUsers, domain.TableCategories,
		domain.TableHero, domain.TableAbout,
	}
}

// bucketFor maps a table to its blob store bucket. Bucket names cannot
// contain underscores.
func bucketFor(table string) string {
	return "media-" + strings.ReplaceAll(table, "_", "-")
}

func registerCollection[T domain.Entity](a *App, table string, delay time.Duration) *sync.Synchronizer[T] {
	s := sync.NewSynchronizer[T](table, bucketFor(table), a.records, a.blobs, a.assets)
	b := sync.NewBridge(table, a.channel, s, delay)
	a.resources[table] = newResource(s, b)
	a.bridges[table] = b
	a.loaders[table] = s
	return s
}

func registerSingleton[T domain.Entity](a *App, table, id string, delay time.Duration) *sync.Singleton[T] {
	s := sync.NewSingleton[T](table, bucketFor(table), id, a.records, a.blobs, a.assets)
	b := sync.NewBridge(table, a.channel, s, delay)
	a.documents[table] = newDocument(s, b)
	a.bridges[table] = b
	a.loaders[table] = s
	return s
}

// loader is the common bulk-load surface of collections and singletons.
type loader interface {
	Load(ctx context.Context) error
}

// Start rebuilds all collection state from the record store, then
// starts the change bridges. The bridges defer their subscriptions, so
// no push event can race the bulk load.
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range a.loaders {
		l := l
		g.Go(func() error { return l.Load(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := a.bootstrapAdmin(ctx); err != nil {
		return err
	}
	for _, b := range a.bridges {
		b.Start(ctx)
	}
	return nil
}

// Stop tears down the bridges and the channel connection.
func (a *App) Stop() {
	for _, b := range a.bridges {
		b.Stop()
	}
	if closer, ok := a.channel.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// Resource returns the collection view for a table.
func (a *App) Resource(table string) (*Resource, bool) {
	r, ok := a.resources[table]
	return r, ok
}

// Document returns the singleton view for a table.
func (a *App) Document(table string) (*Document, bool) {
	d, ok := a.documents[table]
	return d, ok
}

// Status reports per-table subscription health for UI display.
func (a *App) Status() map[string]sync.ConnectionState {
	out := make(map[string]sync.ConnectionState, len(a.bridges))
	for table, b := range a.bridges {
		out[table] = b.State()
	}
	return out
}

// ResolvePreview returns the bytes behind a temporary preview URL.
func (a *App) ResolvePreview(url string) ([]byte, bool) {
	return a.assets.Registry().Resolve(url)
}

// Login validates admin credentials against the users collection.
func (a *App) Login(email, password string) (domain.SiteUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.SiteUser{}, ErrInvalidCredentials
	}
	for _, u := range a.users.Collection().Snapshot() {
		if strings.ToLower(u.Email) != email {
			continue
		}
		if !auth.CheckPassword(password, u.PasswordHash) {
			return domain.SiteUser{}, ErrInvalidCredentials
		}
		u.PasswordHash = ""
		return u, nil
	}
	return domain.SiteUser{}, ErrInvalidCredentials
}

// bootstrapAdmin seeds the first admin account when the users table is
// empty and bootstrap credentials are configured.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	if a.bootstrapEmail == "" || a.bootstrapPassword == "" {
		return nil
	}
	if len(a.users.Collection().Snapshot()) > 0 {
		return nil
	}
	hash, err := auth.HashPassword(a.bootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	_, err = a.users.Add(ctx, domain.SiteUser{
		Email:        a.bootstrapEmail,
		Name:         "Administrator",
		Role:         domain.RoleAdmin,
		PasswordHash: hash,
	}, nil)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	util.LoggerFromContext(ctx).Info("seeded bootstrap admin", "email", a.bootstrapEmail)
	return nil
}
