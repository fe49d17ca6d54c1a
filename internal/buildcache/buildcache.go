// Package buildcache is a content-addressed cache of compiled assembly
// output, keyed by a hash of the expanded preprocessor text plus the
// active session.Options. The driver looks the cache up after sema and
// optimization have run, so a hit skips only register allocation, codegen
// and start-stub generation; preprocessing, lexing, parsing, sema and
// optimization run on every compile.
package buildcache

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/splanck/vc/internal/session"
)

// Cache wraps a modernc.org/sqlite-backed table mapping content hash to
// generated assembly text. Safe for concurrent use by the driver's
// errgroup-parallel per-file pipelines.
type Cache struct {
	db    *sql.DB
	group singleflight.Group
	mu    sync.Mutex
}

// Open creates or reuses the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS entries (
		hash TEXT PRIMARY KEY,
		asm  BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes the preprocessed source text together with the options that
// affect codegen output, so two translation units with identical expanded
// text but different target word size/syntax/optimizer settings never
// collide.
func Key(preprocessed string, opts session.Options) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(preprocessed))
	fmt.Fprintf(h, "|word=%d|syntax=%d|named=%t|pack=%d", opts.Word, opts.Syntax, opts.NamedLocals, opts.PragmaPack)
	fmt.Fprintf(h, "|fold=%t|dce=%t|cprop=%t|inline=%t|unreach=%t",
		opts.DisableFold, opts.DisableDCE, opts.DisableCProp, opts.DisableInline, opts.DisableUnreach)
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up key, deduplicating concurrent lookups for the same key via
// singleflight so two goroutines racing on an identical translation unit
// only hit the database once.
func (c *Cache) Get(key string) (asm string, hit bool, err error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		var blob []byte
		err := c.db.QueryRow("SELECT asm FROM entries WHERE hash = ?", key).Scan(&blob)
		if err == sql.ErrNoRows {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return string(blob), nil
	})
	if err != nil {
		return "", false, err
	}
	s, _ := v.(string)
	return s, s != "", nil
}

// Put stores asm under key, overwriting any prior entry (a key collision
// across compiler versions/bugfixes should always prefer the newest run).
func (c *Cache) Put(key, asm string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec("INSERT OR REPLACE INTO entries (hash, asm) VALUES (?, ?)", key, asm)
	return err
}
