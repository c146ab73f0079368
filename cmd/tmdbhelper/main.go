package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"tmdbhelper/api"
	"tmdbhelper/config"
	"tmdbhelper/handlers"
	"tmdbhelper/internal/cachestore"
	"tmdbhelper/internal/logging"
	"tmdbhelper/services/container"
	"tmdbhelper/services/fanarttv"
	"tmdbhelper/services/library"
	"tmdbhelper/services/metadata"
	"tmdbhelper/services/scheduler"
	"tmdbhelper/services/trakt"
	"tmdbhelper/utils"
)

const bootFlagName = "tmdbhelper-trakt-boot"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config.yaml")
	listen := flag.String("listen", "", "listen address, overrides server.listen")
	query := flag.String("query", "", "print one listing and exit, e.g. \"info=popular&tmdb_type=movie\"")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(handlers.Version)
		return
	}

	mgr := config.NewManager(afero.NewOsFs(), *configPath)
	settings, err := mgr.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		settings.Server.Listen = *listen
	}

	logCloser, err := logging.Setup(settings.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cachestore.Open(settings.Cache.Dir, settings.Cache.DefaultDays)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()
	log.Printf("[main] cache at %q", settings.Cache.Dir)

	tmdb := metadata.NewService(settings.TMDb.APIKey, settings.TMDb.Language, settings.TMDb.BaseURL, store, settings.Cache.TMDbDays)
	providers := container.Providers{TMDb: tmdb}
	var tasks []scheduler.Task
	if settings.TMDb.APIKey != "" {
		tasks = append(tasks, scheduler.ListsTask(tmdb, scheduler.DefaultListWarms, settings.Scheduler.ListsInterval))
	}
	if settings.FanartTV.APIKey != "" {
		providers.Artwork = fanarttv.NewClient(settings.FanartTV.APIKey, settings.FanartTV.ClientKey,
			settings.TMDb.Language, "", store, settings.Cache.FanartTVDays)
	}

	var traktAuth handlers.TraktAuth
	if settings.Trakt.ClientID != "" {
		auth, sync := newTrakt(settings, mgr, store)
		traktAuth = auth
		providers.Trakt = sync
		tasks = append(tasks,
			scheduler.WatchStateTask(sync, settings.Scheduler.WatchStateInterval),
			scheduler.ReauthorizeTask(auth, settings.Scheduler.ReauthInterval),
		)
	}

	if settings.Listing.LocalDB && settings.Library.Path != "" {
		path, err := logging.ExpandPath(settings.Library.Path)
		if err == nil {
			var db *library.Database
			db, err = library.Open(ctx, path)
			if err == nil {
				defer db.Close()
				providers.Library = db
			}
		}
		if err != nil {
			log.Printf("[main] local library unavailable: %v", err)
		}
	}

	router := container.NewRouter(providers, settings.Listing)

	if *query != "" {
		if err := runQuery(ctx, router, *query); err != nil {
			log.Fatalf("Listing failed: %v", err)
		}
		return
	}

	warmer := scheduler.NewService(settings.Scheduler.CheckInterval, tasks...)
	if err := warmer.Start(ctx); err != nil {
		log.Printf("[main] scheduler: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		warmer.Stop(stopCtx)
	}()

	if err := serve(ctx, settings, router, traktAuth, warmer); err != nil {
		log.Fatal(err)
	}
}

func newTrakt(settings config.Settings, mgr *config.Manager, store *cachestore.Store) (*trakt.Authorizer, *trakt.Sync) {
	client := trakt.NewClient(settings.Trakt.ClientID, settings.Trakt.ClientSecret)
	tokens := trakt.Tokens{
		AccessToken:  settings.Trakt.AccessToken,
		RefreshToken: settings.Trakt.RefreshToken,
	}
	if settings.Trakt.ExpiresAt > 0 {
		tokens.ExpiresAt = time.Unix(settings.Trakt.ExpiresAt, 0)
	}
	save := func(t trakt.Tokens) error {
		return mgr.SaveTraktToken(t.AccessToken, t.RefreshToken, t.ExpiresAt)
	}
	auth := trakt.NewAuthorizer(client, tokens, trakt.NewBootFlag(bootFlagName), save)
	activities := trakt.NewActivities(client, auth)
	return auth, trakt.NewSync(client, auth, activities, store, settings.Cache.TraktDays)
}

func runQuery(ctx context.Context, router *container.Router, query string) error {
	values, err := url.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return router.Directory(ctx, params, newTextSink(os.Stdout))
}

func serve(ctx context.Context, settings config.Settings, router *container.Router, traktAuth handlers.TraktAuth, warmer *scheduler.Service) error {
	r := utils.NewRouter()

	directoryLimiter := api.NewClientRateLimiter(ctx, rate.Limit(20), 40)
	loginLimiter := api.NewClientRateLimiter(ctx, rate.Every(12*time.Second), 5)

	directoryHandler := handlers.NewDirectoryHandler(router)
	traktHandler := handlers.NewTraktHandler(traktAuth)
	logsFile, _ := logging.ExpandPath(settings.Logging.File)
	logsHandler := handlers.NewLogsHandler(logsFile)
	versionHandler := handlers.NewVersionHandler()
	tasksHandler := handlers.NewTasksHandler(warmer)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(api.APIKeyMiddleware(settings.Server.APIKey))
	protected.Handle("/directory", directoryLimiter.Limit(http.HandlerFunc(directoryHandler.List))).Methods(http.MethodGet, http.MethodOptions)
	protected.Handle("/trakt/login", loginLimiter.Limit(http.HandlerFunc(traktHandler.Login))).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/trakt/status", traktHandler.Status).Methods(http.MethodGet)
	protected.HandleFunc("/logs", logsHandler.Tail).Methods(http.MethodGet)
	protected.HandleFunc("/version", versionHandler.GetVersion).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", tasksHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/{name}/run", tasksHandler.Run).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              settings.Server.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[main] shutdown: %v", err)
		}
	}()

	log.Printf("[main] listening on %s", settings.Server.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
