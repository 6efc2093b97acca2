package database

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/juniordw/rotasi-lms-sub000/core"
	appfs "github.com/juniordw/rotasi-lms-sub000/fs"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// goose keeps its settings in package globals
var gooseMu sync.Mutex

func init() {
	sqlx.BindDriver(EngineSQLite, sqlx.QUESTION)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(EnginePostgres, u.String())
}

func openSQLite(conf *core.Config) (*sqlx.DB, error) {
	p := conf.Database.Path
	if p == "" {
		p = ":memory:"
	}
	db, err := sqlx.Open(EngineSQLite, p+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers, and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)
	return db, nil
}

// Open opens the configured database. It does not create it, see CreateIfNotExist.
func Open(conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EngineSQLite:
		return openSQLite(conf)
	case EnginePostgres, "":
		return open(conf.Database.Name, false, conf)
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found bool
	err := db.Get(&found, db.Rebind(query), name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user and database on postgres. sqlite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.IsSQLite() {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	return errors.Wrap(createDB(appDB, conf), "creating database")
}

func gooseDialect(engine string) string {
	if engine == EngineSQLite {
		return "sqlite3"
	}
	return EnginePostgres
}

// Migrate applies the embedded migrations of the db's engine.
func Migrate(db *sqlx.DB, quiet ...bool) error {
	return RunMigrations(db, "up", quiet...)
}

// SetupMigrations points goose at the embedded migrations of the db's engine and returns their directory.
func SetupMigrations(db *sqlx.DB, quiet bool) (string, error) {
	goose.SetBaseFS(appfs.FS)
	if quiet {
		goose.SetLogger(log.New(io.Discard, "", 0))
	} else {
		goose.SetLogger(log.New(log.Writer(), "", log.LstdFlags))
	}
	if err := goose.SetDialect(gooseDialect(db.DriverName())); err != nil {
		return "", errors.Wrap(err, "setting migrations dialect")
	}
	return path.Join("migrations", db.DriverName()), nil
}

// RunMigrations runs a goose command ("up", "down", "status", "version"...) against the embedded migrations.
func RunMigrations(db *sqlx.DB, command string, quiet ...bool) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := SetupMigrations(db, len(quiet) > 0 && quiet[0])
	if err != nil {
		return err
	}
	if err = goose.Run(command, db.DB, dir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
