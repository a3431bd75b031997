package tradedb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
)

const (
	dbName           = "trade.db"
	dbFilePermission = 0600
)

// migration is a function which takes a prior outdated version of the
// database instance and mutates the key/bucket structure to arrive at a more
// up-to-date version of the database.
type migration func(tx *bolt.Tx) error

type version struct {
	number    uint32
	migration migration
}

var (
	// dbVersions is storing all versions of database. If current version
	// of database don't match with latest version this list will be used
	// for retrieving all migration function that are need to apply to the
	// current db.
	dbVersions = []version{
		{
			// The base DB version requires no migration.
			number:    0,
			migration: nil,
		},
	}

	// tradeBucket is the top-level bucket storing serialized trade
	// records keyed by trade id.
	tradeBucket = []byte("trade-records")

	// metaBucket stores the database metadata, such as the schema
	// version.
	metaBucket = []byte("metadata")

	// dbVersionKey is the key under which the schema version is stored
	// within the meta bucket.
	dbVersionKey = []byte("version")

	// Big endian is the preferred byte order, due to cursor scans over
	// integer keys iterating in order.
	byteOrder = binary.BigEndian
)

// DB is the persistent datastore for the trade manager. The database stores
// every trade record the node has initiated or accepted, keyed by trade id.
type DB struct {
	*bolt.DB
	dbPath string
}

// Open opens the trade db under dbPath, creating it first if it does not
// exist yet. Any necessary schema migrations due to updates will take place
// as necessary.
func Open(dbPath string) (*DB, error) {
	path := filepath.Join(dbPath, dbName)

	if !fileExists(path) {
		if err := createTradeDB(dbPath); err != nil {
			return nil, err
		}
	}

	bdb, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	tradeDB := &DB{
		DB:     bdb,
		dbPath: dbPath,
	}

	// Synchronize the version of database and apply migrations if needed.
	if err := tradeDB.syncVersions(dbVersions); err != nil {
		bdb.Close()
		return nil, err
	}

	return tradeDB, nil
}

// Wipe deletes every stored trade record by dropping the trade bucket; the
// metadata bucket is kept. The deletion is done in a single transaction,
// therefore this operation is fully atomic.
func (d *DB) Wipe() error {
	return d.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(tradeBucket)
		if err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		return nil
	})
}

// createTradeDB creates and initializes a fresh version of the trade db. In
// the case that the target path has not yet been created or doesn't yet
// exist, then the path is created. Additionally, all required top-level
// buckets used within the database are created.
func createTradeDB(dbPath string) error {
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return err
		}
	}

	path := filepath.Join(dbPath, dbName)
	bdb, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return err
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucket(tradeBucket); err != nil {
			return err
		}

		if _, err := tx.CreateBucket(metaBucket); err != nil {
			return err
		}

		meta := &Meta{
			DbVersionNumber: getLatestDBVersion(dbVersions),
		}
		return putMeta(meta, tx)
	})
	if err != nil {
		return fmt.Errorf("unable to create new trade db")
	}

	return bdb.Close()
}

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// syncVersions function is used for safe db version synchronization. It
// applies migration functions to the current database and recovers the
// previous state of db if at least one error/panic appeared during
// migration.
func (d *DB) syncVersions(versions []version) error {
	meta, err := d.FetchMeta()
	if err != nil {
		if err == ErrMetaNotFound {
			meta = &Meta{}
		} else {
			return err
		}
	}

	// If the current database version matches the latest version number,
	// then we don't need to perform any migrations.
	latestVersion := getLatestDBVersion(versions)
	log.Infof("Checking for schema update: latest_version=%v, "+
		"db_version=%v", latestVersion, meta.DbVersionNumber)
	if meta.DbVersionNumber == latestVersion {
		return nil
	}

	log.Infof("Performing database schema migration")

	// Otherwise, we fetch the migrations which need to applied, and
	// execute them serially within a single database transaction to
	// ensure the migration is atomic.
	migrations, migrationVersions := getMigrationsToApply(versions,
		meta.DbVersionNumber)
	return d.Update(func(tx *bolt.Tx) error {
		for i, migration := range migrations {
			if migration == nil {
				continue
			}

			log.Infof("Applying migration #%v", migrationVersions[i])

			if err := migration(tx); err != nil {
				log.Infof("Unable to apply migration #%v",
					migrationVersions[i])
				return err
			}
		}

		meta.DbVersionNumber = latestVersion
		return putMeta(meta, tx)
	})
}

func getLatestDBVersion(versions []version) uint32 {
	return versions[len(versions)-1].number
}

// getMigrationsToApply retrieves the migration function that should be
// applied to the database.
func getMigrationsToApply(versions []version, version uint32) ([]migration, []uint32) {
	migrations := make([]migration, 0, len(versions))
	migrationVersions := make([]uint32, 0, len(versions))

	for _, v := range versions {
		if v.number > version {
			migrations = append(migrations, v.migration)
			migrationVersions = append(migrationVersions, v.number)
		}
	}

	return migrations, migrationVersions
}

// Meta structure holds the database meta information.
type Meta struct {
	// DbVersionNumber is the current schema version of the database.
	DbVersionNumber uint32
}

// FetchMeta fetches the meta data from bolt db and returns filled meta
// structure.
func (d *DB) FetchMeta() (*Meta, error) {
	meta := &Meta{}

	err := d.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(metaBucket)
		if bucket == nil {
			return ErrMetaNotFound
		}

		data := bucket.Get(dbVersionKey)
		if data == nil {
			return ErrMetaNotFound
		}

		meta.DbVersionNumber = byteOrder.Uint32(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

// putMeta writes the passed instance of the database met-data struct to the
// meta bucket.
func putMeta(meta *Meta, tx *bolt.Tx) error {
	bucket, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}

	scratch := make([]byte, 4)
	byteOrder.PutUint32(scratch, meta.DbVersionNumber)
	return bucket.Put(dbVersionKey, scratch)
}
