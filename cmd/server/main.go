package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/oraz/quizadmin/internal/api"
	dbstore "github.com/oraz/quizadmin/internal/db"
	"github.com/oraz/quizadmin/internal/middleware"
	"github.com/oraz/quizadmin/internal/services"
	"github.com/oraz/quizadmin/internal/utils"
)

func main() {
	// Local development keeps its settings in .env; absence is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	addr := utils.SafeEnv("QUIZADMIN_ADDR", ":8080")
	linkBase := utils.SafeEnv("QUIZADMIN_LINK_BASE", "http://localhost:8080")
	commit := os.Getenv("QUIZADMIN_COMMIT")
	buildTime := os.Getenv("QUIZADMIN_BUILD_TIME")

	store, err := openStore()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	mux := http.NewServeMux()
	api.NewRouter(store, services.LogMailer{}, linkBase).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "QuizAdmin API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.CORS(middleware.SecureHeaders(middleware.WithAuth(mux)))

	log.Printf("QuizAdmin server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore picks the persistence backend: postgres when a database URL is
// set, sqlite when a file path is set, in-memory otherwise.
func openStore() (api.Store, error) {
	if dsn := os.Getenv("QUIZADMIN_DATABASE_URL"); dsn != "" {
		pg, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(); err != nil {
			return nil, err
		}
		log.Printf("using postgres store")
		return dbstore.NewPostgresStore(pg)
	}
	if path := os.Getenv("QUIZADMIN_SQLITE_PATH"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn := "file:" + filepath.ToSlash(path) + "?cache=shared&_busy_timeout=5000"
		lite, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		if err := dbstore.RunMigrations(lite, os.Getenv("QUIZADMIN_MIGRATIONS_DIR")); err != nil {
			return nil, err
		}
		log.Printf("using sqlite store at %s", path)
		return dbstore.NewSQLiteStore(lite)
	}
	log.Printf("using in-memory store (state is lost on restart)")
	return api.NewMemoryStore(), nil
}
