// Package library reads compiled library indexes: declarations of foreign
// code kept in an SQLite database. Every type a foreign declaration
// exposes is a platform type whose nullability is unknown.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	package     TEXT NOT NULL,
	name        TEXT NOT NULL,
	type_params TEXT NOT NULL DEFAULT '', -- "K, out V : Any"
	supertypes  TEXT NOT NULL DEFAULT '', -- "Map<K, V>, Serializable"
	constructor TEXT,                     -- parameter list, NULL when not instantiable
	PRIMARY KEY (package, name)
);

-- owner is a package, or the qualified name of a class of this library
CREATE TABLE IF NOT EXISTS members (
	owner       TEXT NOT NULL,
	declaration TEXT NOT NULL -- "fun get(key: K): V?"
);

CREATE INDEX IF NOT EXISTS idx_members_owner ON members(owner);
`

// Class is a foreign class as stored in an index.
type Class struct {
	Package    string
	Name       string
	TypeParams string
	Supertypes string
	// Constructor is the primary constructor's parameter list; nil for
	// classes that cannot be instantiated.
	Constructor *string
	Members     []string
}

func (c Class) Qualified() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// Function is a top-level foreign function or property.
type Function struct {
	Package     string
	Declaration string
}

// Contents is everything an index holds.
type Contents struct {
	Classes   []Class
	Functions []Function
}

// Library is an open index.
type Library struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

type Option func(*Library) *Library

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Library) *Library {
		l.logger = logger
		return l
	}
}

// Open opens an existing index.
func Open(path string, options ...Option) (*Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening library %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening library %s: %w", path, err)
	}
	l := &Library{db: db, path: path, logger: zerolog.Nop()}
	for _, opt := range options {
		l = opt(l)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('classes', 'members')`).Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading library %s: %w", path, err)
	}
	if n != 2 {
		db.Close()
		return nil, fmt.Errorf("%s is not a library index", path)
	}
	return l, nil
}

func (l *Library) Path() string { return l.path }

func (l *Library) Close() error { return l.db.Close() }

// Create writes an index at path, replacing whatever was there.
func Create(path string, contents Contents) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing library %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("creating library %s: %w", path, err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema of %s: %w", path, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range contents.Classes {
		var ctor any
		if c.Constructor != nil {
			ctor = *c.Constructor
		}
		if _, err := tx.Exec(`INSERT INTO classes (package, name, type_params, supertypes, constructor) VALUES (?, ?, ?, ?, ?)`,
			c.Package, c.Name, c.TypeParams, c.Supertypes, ctor); err != nil {
			return fmt.Errorf("writing class %s: %w", c.Qualified(), err)
		}
		for _, m := range c.Members {
			if _, err := tx.Exec(`INSERT INTO members (owner, declaration) VALUES (?, ?)`, c.Qualified(), m); err != nil {
				return fmt.Errorf("writing member of %s: %w", c.Qualified(), err)
			}
		}
	}
	for _, f := range contents.Functions {
		if _, err := tx.Exec(`INSERT INTO members (owner, declaration) VALUES (?, ?)`, f.Package, f.Declaration); err != nil {
			return fmt.Errorf("writing function of %s: %w", f.Package, err)
		}
	}
	return tx.Commit()
}

// Read returns the raw contents of the index.
func (l *Library) Read(ctx context.Context) (*Contents, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT package, name, type_params, supertypes, constructor FROM classes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("reading classes of %s: %w", l.path, err)
	}
	defer rows.Close()
	contents := &Contents{}
	byName := make(map[string]int)
	for rows.Next() {
		var c Class
		var ctor sql.NullString
		if err := rows.Scan(&c.Package, &c.Name, &c.TypeParams, &c.Supertypes, &ctor); err != nil {
			return nil, fmt.Errorf("reading classes of %s: %w", l.path, err)
		}
		if ctor.Valid {
			c.Constructor = &ctor.String
		}
		byName[c.Qualified()] = len(contents.Classes)
		contents.Classes = append(contents.Classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := l.db.QueryContext(ctx, `SELECT owner, declaration FROM members ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("reading members of %s: %w", l.path, err)
	}
	defer members.Close()
	for members.Next() {
		var owner, decl string
		if err := members.Scan(&owner, &decl); err != nil {
			return nil, fmt.Errorf("reading members of %s: %w", l.path, err)
		}
		if i, ok := byName[owner]; ok {
			contents.Classes[i].Members = append(contents.Classes[i].Members, decl)
			continue
		}
		contents.Functions = append(contents.Functions, Function{Package: owner, Declaration: decl})
	}
	return contents, members.Err()
}

// Load declares the contents of the index in table with library origin
// and returns how many symbols it declared. Names in declarations resolve
// to classes of the library, by qualified or simple name, then to the
// builtins.
func (l *Library) Load(ctx context.Context, table *symbols.Table) (int, error) {
	contents, err := l.Read(ctx)
	if err != nil {
		return 0, err
	}
	resolve := contents.resolver()
	count := 0
	declare := func(name string, kind symbols.SymbolKind, sig symbols.Signature, options ...symbols.DeclareOption) error {
		options = append(options, symbols.WithOrigin(symbols.LibraryOrigin))
		if _, err := table.Declare(name, kind, sig, options...); err != nil {
			return fmt.Errorf("%s: %w", l.path, err)
		}
		count++
		return nil
	}

	for _, c := range contents.Classes {
		ci, err := typesystem.ParseClassHeader(c.Qualified(), c.TypeParams, c.Supertypes, resolve)
		if err != nil {
			return count, fmt.Errorf("%s: class %s: %w", l.path, c.Qualified(), err)
		}
		sig := symbols.Signature{TypeParams: ci.TypeParams, Supertypes: ci.Supertypes, Return: ci.Type()}
		if c.Constructor != nil {
			d, err := symbols.ParseDeclaration("fun "+c.Name+"("+*c.Constructor+")", ci.TypeParams, resolve)
			if err != nil {
				return count, fmt.Errorf("%s: constructor of %s: %w", l.path, c.Qualified(), err)
			}
			sig.Params = platformParams(d.Signature.Params)
		}
		if err := declare(c.Name, symbols.ClassSymbol, sig, symbols.InPackage(c.Package)); err != nil {
			return count, err
		}
		for _, m := range c.Members {
			d, err := symbols.ParseDeclaration(m, ci.TypeParams, resolve)
			if err != nil {
				return count, fmt.Errorf("%s: member of %s: %w", l.path, c.Qualified(), err)
			}
			platform(d)
			if err := declare(d.Name, d.Kind, d.Signature, d.Options(symbols.InClass(c.Qualified()))...); err != nil {
				return count, err
			}
		}
	}
	for _, f := range contents.Functions {
		d, err := symbols.ParseDeclaration(f.Declaration, nil, resolve)
		if err != nil {
			return count, fmt.Errorf("%s: %w", l.path, err)
		}
		platform(d)
		if err := declare(d.Name, d.Kind, d.Signature, d.Options(symbols.InPackage(f.Package))...); err != nil {
			return count, err
		}
	}
	l.logger.Debug().Str("library", l.path).Int("symbols", count).Msg("library loaded")
	return count, nil
}

// Load opens the index at path, declares it into a new table and closes
// it again.
func Load(ctx context.Context, path string, options ...Option) (*symbols.Table, error) {
	lib, err := Open(path, options...)
	if err != nil {
		return nil, err
	}
	defer lib.Close()
	table := symbols.NewTable("lib:"+path, symbols.WithLogger(lib.logger))
	if _, err := lib.Load(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

func (c *Contents) resolver() typesystem.NameResolver {
	qualified := make(map[string]bool, len(c.Classes))
	simple := make(map[string]string, len(c.Classes))
	for _, cl := range c.Classes {
		q := cl.Qualified()
		qualified[q] = true
		if _, taken := simple[cl.Name]; !taken {
			simple[cl.Name] = q
		}
	}
	return func(name string) (typesystem.Type, bool) {
		if qualified[name] {
			return typesystem.TClass{Name: name}, true
		}
		if !strings.Contains(name, ".") {
			if q, ok := simple[name]; ok {
				return typesystem.TClass{Name: q}, true
			}
		}
		return typesystem.ResolveBuiltins(name)
	}
}

// platform makes the value types of a foreign declaration flexible. Unit
// stays Unit.
func platform(d *symbols.Declaration) {
	d.Signature.Params = platformParams(d.Signature.Params)
	if !typesystem.IsUnit(d.Signature.Return) {
		d.Signature.Return = typesystem.Platform(d.Signature.Return)
	}
}

func platformParams(params []symbols.Param) []symbols.Param {
	result := make([]symbols.Param, len(params))
	for i, p := range params {
		p.Type = typesystem.Platform(p.Type)
		result[i] = p
	}
	return result
}
