// Package migrations applies the embedded schema files for the PostgreSQL
// and ClickHouse backends.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strings"

	chstore "bsc-token-scout/internal/storage/clickhouse"
)

//go:embed postgres/*.sql clickhouse/*.sql
var files embed.FS

// Migration is one schema file.
type Migration struct {
	Name string
	SQL  string
}

// ScriptExecer runs a multi-statement SQL script. *postgres.Pool satisfies it.
type ScriptExecer interface {
	ExecScript(ctx context.Context, script string) error
}

// Load returns the non-empty migrations of a backend ("postgres" or
// "clickhouse") in file name order.
func Load(backend string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, backend)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", backend, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(files, path.Join(backend, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(data)})
	}
	return out, nil
}

// RunPostgres applies every PostgreSQL migration. The scripts are idempotent,
// so this runs on every start.
func RunPostgres(ctx context.Context, db ScriptExecer) error {
	ms, err := Load("postgres")
	if err != nil {
		return err
	}
	for _, m := range ms {
		if err := db.ExecScript(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// RunClickhouse creates the DSN's database if needed, applies every
// ClickHouse migration statement by statement and returns a connection to
// that database.
func RunClickhouse(ctx context.Context, dsn string) (*chstore.Conn, error) {
	db, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db)
	_ = admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", db, err)
	}

	ms, err := Load("clickhouse")
	if err != nil {
		return nil, err
	}
	conn, err := chstore.NewConnWithDatabase(ctx, dsn, db)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	for _, m := range ms {
		// The native protocol takes one statement per Exec.
		for _, stmt := range SplitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
	}
	return conn, nil
}

// SplitStatements splits a script on semicolons outside single-quoted
// literals and drops -- comment lines.
func SplitStatements(script string) []string {
	var (
		stmts  []string
		cur    strings.Builder
		quoted bool
		flush  = func() {
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		}
	)
	for _, line := range strings.Split(script, "\n") {
		if !quoted && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'':
				quoted = !quoted
			case ch == ';' && !quoted:
				flush()
				continue
			}
			cur.WriteByte(ch)
		}
		cur.WriteByte('\n')
	}
	flush()
	return stmts
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn %q names no database", u.Redacted())
	}
	return db, nil
}
