/*
Quosi-trace-server starts a trace-session server and begins listening for new
connections.

Usage:

	quosi-trace-server [flags]
	quosi-trace-server [flags] -l [[ADDRESS]:PORT]

Once started, the server listens for HTTP requests and lets a remote client
step a compiled Quosi graph one up-call at a time, over REST, without
embedding the VM in-process. By default it listens on localhost:8080; this
can be changed with the --listen/-l flag or the QUOSI_LISTEN_ADDRESS
environment variable.

If a JWT signing secret is not given, one is generated and seeded from random
bytes; as a consequence all tokens issued become invalid as soon as the
server shuts down. This is suitable for testing, but a stable secret must be
given via --secret, QUOSI_TOKEN_SECRET, or a project file for any long-lived
deployment.

The flags are:

	-v, --version
		Give the current version and exit.

	-p, --project FILE
		Load bind address, DB path, JWT secret, and token TTL from a
		quosi.toml file's [server] table. Lowest priority in every setting's
		precedence chain below: a flag or environment variable still wins.

	-l, --listen LISTEN_ADDRESS
		Listen on the given address. Must be ADDRESS:PORT or :PORT. Defaults
		to the QUOSI_LISTEN_ADDRESS environment variable, then to the project
		file's bind_addr, then to localhost:8080.

	-s, --secret TOKEN_SECRET
		Secret used to sign JWTs, folded per-user with the account's password
		hash and last-logout time. Defaults to QUOSI_TOKEN_SECRET, then to
		the project file's jwt_secret, then to a randomly generated value.

	--db DRIVER[:PATH]
		DRIVER is inmem or sqlite; sqlite takes the path to the database
		file, e.g. sqlite:./sessions.db. Defaults to QUOSI_DATABASE, then to
		"sqlite:" plus the project file's db_path if one was given, then to
		inmem.
*/
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/dekarrin/quosi/internal/config"
	"github.com/dekarrin/quosi/internal/server"
	"github.com/dekarrin/quosi/internal/server/store"
	"github.com/dekarrin/quosi/internal/version"
)

// defaultAdminPassword is the password seeded for the initial "admin"
// account. An operator should change it before exposing the server.
const defaultAdminPassword = "password"

const (
	envListen = "QUOSI_LISTEN_ADDRESS"
	envSecret = "QUOSI_TOKEN_SECRET"
	envDB     = "QUOSI_DATABASE"
)

var (
	flagVersion = pflag.BoolP("version", "v", false, "Give the current version and exit.")
	flagProject = pflag.StringP("project", "p", "", "Load server settings from a quosi.toml project file.")
	flagListen  = pflag.StringP("listen", "l", "", "Listen on the given address.")
	flagSecret  = pflag.StringP("secret", "s", "", "Secret used to sign JWTs.")
	flagDB      = pflag.String("db", "", "DB driver string: inmem or sqlite:PATH.")
)

func main() {
	pflag.Parse()

	if *flagVersion {
		fmt.Printf("quosi-trace-server (quosi v%s)\n", version.Current)
		return
	}

	if len(pflag.Args()) > 0 {
		fmt.Fprintln(os.Stderr, "too many arguments\nDo -h for help.")
		os.Exit(1)
	}

	var proj *config.Project
	if *flagProject != "" {
		p, err := config.Load(*flagProject)
		if err != nil {
			log.Fatalf("FATAL could not load project file: %s", err)
		}
		proj = p
	}

	listenAddr := os.Getenv(envListen)
	if pflag.Lookup("listen").Changed {
		listenAddr = *flagListen
	}
	if listenAddr == "" && proj != nil {
		listenAddr = proj.Server.BindAddr
	}
	if listenAddr == "" {
		listenAddr = "localhost:8080"
	}

	st, err := openStore(proj)
	if err != nil {
		log.Fatalf("FATAL could not open store: %s", err)
	}

	tokenTTL := 24 * time.Hour
	if proj != nil && proj.Server.TokenTTLHrs > 0 {
		tokenTTL = time.Duration(proj.Server.TokenTTLHrs) * time.Hour
	}

	srv := server.New(server.Config{
		Store:       st,
		UnauthDelay: time.Second,
		TokenTTL:    tokenTTL,
		SigningSalt: loadSecret(proj),
	})

	ensureAdmin(st)

	log.Printf("INFO  Starting quosi-trace-server %s on %s...", version.Current, listenAddr)
	if err := http.ListenAndServe(listenAddr, srv); err != nil {
		log.Fatalf("FATAL server exited: %s", err)
	}
}

func openStore(proj *config.Project) (store.Store, error) {
	dbConnStr := os.Getenv(envDB)
	if pflag.Lookup("db").Changed {
		dbConnStr = *flagDB
	}
	if dbConnStr == "" && proj != nil && proj.Server.DBPath != "" {
		dbConnStr = "sqlite:" + proj.Server.DBPath
	}
	if dbConnStr == "" || dbConnStr == "inmem" {
		return store.NewInMemory(), nil
	}

	parts := strings.SplitN(dbConnStr, ":", 2)
	if len(parts) != 2 || parts[0] != "sqlite" {
		return nil, fmt.Errorf("unsupported DB connection string %q (want inmem or sqlite:PATH)", dbConnStr)
	}
	return store.NewSQLite(parts[1])
}

func loadSecret(proj *config.Project) []byte {
	secretStr := os.Getenv(envSecret)
	if pflag.Lookup("secret").Changed {
		secretStr = *flagSecret
	}
	if secretStr == "" && proj != nil {
		secretStr = proj.Server.JWTSecret
	}
	if secretStr != "" {
		return []byte(secretStr)
	}

	secret := make([]byte, 64)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("FATAL could not generate token secret: %s", err)
	}
	log.Printf("WARN  using generated token secret; all tokens issued will become invalid at shutdown")
	return secret
}

func ensureAdmin(st store.Store) {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR could not hash initial admin password: %v", err)
		return
	}

	ctx := context.Background()
	_, err = st.Users().Create(ctx, store.User{Username: "admin", PasswordHash: string(hash)})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		log.Printf("ERROR could not create initial admin user: %v", err)
		return
	}
	if !errors.Is(err, store.ErrConflict) {
		log.Printf("INFO  added initial admin user; change its password before exposing this server")
	}
}
