// Package rendercache stores finished sample accumulators in a local badger
// database, keyed by everything that determines a render's output.
package rendercache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"whitted/framebuffer"
	"whitted/scene"

	"github.com/dgraph-io/badger"
	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Key prefixes that denote different tables in the key-value store.
const (
	KeyTypeAccumulator uint32 = 0
)

// Key identifies one render: the digest of its inputs combined with the
// options that affect its output.
type Key [sha256.Size]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// NewKey combines inputDigest, which should cover the scene file and its
// textures, with the render options.
func NewKey(inputDigest []byte, opts *scene.RenderOptions) (Key, error) {
	optStruct, err := structpb.NewStruct(map[string]interface{}{
		"workers":        opts.Workers,
		"seed":           opts.Seed,
		"dof_samples":    opts.DOFSamples,
		"dof_scale":      opts.DOFScale,
		"shadow_samples": opts.ShadowSamples,
		"max_depth":      opts.MaxDepth,
	})
	if err != nil {
		return Key{}, xerrors.Errorf("while building options struct: %w", err)
	}

	optBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(optStruct)
	if err != nil {
		return Key{}, xerrors.Errorf("while marshaling options: %w", err)
	}

	h := sha256.New()
	h.Write(inputDigest)
	h.Write(optBytes)

	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

func AccumulatorKey(k Key) []byte {
	key := make([]byte, 4+len(k))
	binary.BigEndian.PutUint32(key[0:4], KeyTypeAccumulator)
	copy(key[4:], k[:])
	return key
}

// glogLogger sends badger's logging to glog.
type glogLogger struct{}

func (glogLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, "badger: "+fmt.Sprintf(format, args...))
}

func (glogLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, "badger: "+fmt.Sprintf(format, args...))
}

func (glogLogger) Infof(format string, args ...interface{}) {
	if glog.V(1) {
		glog.InfoDepth(1, "badger: "+fmt.Sprintf(format, args...))
	}
}

func (glogLogger) Debugf(format string, args ...interface{}) {
	if glog.V(3) {
		glog.InfoDepth(1, "badger: "+fmt.Sprintf(format, args...))
	}
}

type Cache struct {
	DB *badger.DB
}

// Open opens (creating if needed) the cache database in dataDir.
func Open(dataDir string) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions(dataDir).WithLogger(glogLogger{}))
	if err != nil {
		return nil, xerrors.Errorf("while opening badger kv dir: %w", err)
	}
	return &Cache{DB: db}, nil
}

func (c *Cache) Close() error {
	if err := c.DB.Close(); err != nil {
		return xerrors.Errorf("while closing database: %w", err)
	}
	return nil
}

// Get returns the accumulator stored under k.  ok is false if there is none.
func (c *Cache) Get(ctx context.Context, k Key) (im *framebuffer.Image, ok bool, err error) {
	tracer := otel.Tracer("whitted/rendercache")
	_, span := tracer.Start(ctx, "Get")
	defer span.End()
	span.SetAttributes(attribute.String("key", k.String()))

	err = c.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(AccumulatorKey(k))
		if xerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return xerrors.Errorf("while looking up accumulator: %w", err)
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return xerrors.Errorf("while copying accumulator: %w", err)
		}

		im, err = framebuffer.Read(bytes.NewReader(val))
		if err != nil {
			return xerrors.Errorf("while decoding accumulator: %w", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("hit", ok))
	return im, ok, nil
}

// Put stores im under k, replacing any earlier entry.
func (c *Cache) Put(ctx context.Context, k Key, im *framebuffer.Image) error {
	tracer := otel.Tracer("whitted/rendercache")
	_, span := tracer.Start(ctx, "Put")
	defer span.End()
	span.SetAttributes(attribute.String("key", k.String()))

	buf := &bytes.Buffer{}
	if err := framebuffer.Write(im, buf); err != nil {
		return xerrors.Errorf("while encoding accumulator: %w", err)
	}

CommitRetry:
	err := c.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(AccumulatorKey(k), buf.Bytes())
	})
	if xerrors.Is(err, badger.ErrConflict) {
		goto CommitRetry
	} else if err != nil {
		return xerrors.Errorf("while storing accumulator: %w", err)
	}

	return nil
}
