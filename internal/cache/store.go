package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/wsdtool/wsdtool/internal/wsd"
)

// CachePathEnvVar overrides the location of the cache database
const CachePathEnvVar = "WSD_CACHE_PATH"

// DefaultFileName is the cache file created in the home directory
const DefaultFileName = ".wsdcache.db"

// Store persists targets keyed by endpoint address. Upsert replaces any
// record with the same address.
type Store interface {
	Upsert(ctx context.Context, t wsd.TargetService) error
	Delete(ctx context.Context, epRefAddr string) error
	List(ctx context.Context) ([]wsd.TargetService, error)
	Close() error
}

// DefaultPath returns the cache path from WSD_CACHE_PATH, falling back to
// ~/.wsdcache.db.
func DefaultPath() (string, error) {
	if p := os.Getenv(CachePathEnvVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// record is the persisted projection of a target. The address is the
// table key and is not repeated here.
type record struct {
	Types       []string `cbor:"1,keyasint,omitempty"`
	Scopes      []string `cbor:"2,keyasint,omitempty"`
	XAddrs      []string `cbor:"3,keyasint,omitempty"`
	MetaVersion int      `cbor:"4,keyasint"`
}

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error

	recordEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor encoder mode: %v", err))
	}

	recordDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor decoder mode: %v", err))
	}
}

func encodeRecord(t wsd.TargetService) ([]byte, error) {
	return recordEncMode.Marshal(record{
		Types:       t.Types.Sorted(),
		Scopes:      t.Scopes.Sorted(),
		XAddrs:      t.XAddrs.Sorted(),
		MetaVersion: t.MetaVersion,
	})
}

func decodeRecord(epRefAddr string, data []byte) (wsd.TargetService, error) {
	var r record
	if err := recordDecMode.Unmarshal(data, &r); err != nil {
		return wsd.TargetService{}, fmt.Errorf("decode record %s: %w", epRefAddr, err)
	}
	return wsd.TargetService{
		EpRefAddr:   epRefAddr,
		Types:       wsd.NewStringSet(r.Types...),
		Scopes:      wsd.NewStringSet(r.Scopes...),
		XAddrs:      wsd.NewStringSet(r.XAddrs...),
		MetaVersion: r.MetaVersion,
	}, nil
}
