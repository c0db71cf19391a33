package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metastore/internal/archive"
	"metastore/internal/metrics"
	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

// Archive aliases re-export the sink contract so callers outside the
// module can name it without reaching into internal packages.
type (
	ArchiveSink       = archive.Sink
	ArchiveObjectInfo = archive.ObjectInfo
)

// OpenArchive selects a snapshot sink from process environment; see the
// internal archive package for the variables involved.
func OpenArchive(ctx context.Context) (ArchiveSink, error) {
	return archive.Open(ctx)
}

// SnapshotEntry is one meta record inside an exported snapshot.
type SnapshotEntry struct {
	Key   string       `json:"key"`
	Type  meta.TypeTag `json:"type"`
	Value string       `json:"value"`
}

// Snapshot is the JSON document written to the archive for one owner. It
// carries raw serialized values, so restoring needs no handler registry.
type Snapshot struct {
	Owner   meta.OwnerRef   `json:"owner"`
	TakenAt time.Time       `json:"taken_at"`
	Entries []SnapshotEntry `json:"entries"`
}

// SnapshotKey maps an owner onto its archive object key.
func SnapshotKey(owner meta.OwnerRef) string {
	return fmt.Sprintf("meta/%s/%s.json", owner.Kind, owner.ID)
}

// Exporter writes owner snapshots to an archive sink and restores them.
type Exporter struct {
	relation metable.Relation
	sink     ArchiveSink
	log      zerolog.Logger
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

// Exporter binds the store's relation to a sink.
func (s *Store) Exporter(sink ArchiveSink) *Exporter {
	return &Exporter{
		relation: s.relation,
		sink:     sink,
		log:      s.log,
		metrics:  s.metrics,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// ExportOwner serializes the owner's current meta collection into a
// snapshot document and writes it to the sink, replacing any prior export.
func (e *Exporter) ExportOwner(ctx context.Context, owner meta.OwnerRef) (ArchiveObjectInfo, error) {
	recs, err := e.relation.Load(ctx, owner)
	if err != nil {
		return ArchiveObjectInfo{}, fmt.Errorf("load meta for %s:%s: %w", owner.Kind, owner.ID, err)
	}
	snap := Snapshot{Owner: owner, TakenAt: e.nowFn(), Entries: make([]SnapshotEntry, 0, len(recs))}
	for _, rec := range recs {
		snap.Entries = append(snap.Entries, SnapshotEntry{Key: rec.Key, Type: rec.Type, Value: rec.Value})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return ArchiveObjectInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	info, err := e.sink.Put(ctx, SnapshotKey(owner), data)
	if err != nil {
		return ArchiveObjectInfo{}, fmt.Errorf("write snapshot: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ArchiveWritesTotal.Inc()
	}
	e.log.Debug().Str("key", info.Key).Int64("size", info.Size).Msg("meta snapshot exported")
	return info, nil
}

// RestoreOwner replaces the owner's meta collection with the archived
// snapshot, using the same full-replace semantics as SyncMeta.
func (e *Exporter) RestoreOwner(ctx context.Context, owner meta.OwnerRef) error {
	data, err := e.sink.Get(ctx, SnapshotKey(owner))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	recs := make([]*meta.Meta, 0, len(snap.Entries))
	for _, entry := range snap.Entries {
		recs = append(recs, &meta.Meta{
			Owner: owner,
			Key:   meta.NormalizeKey(entry.Key),
			Type:  entry.Type,
			Value: entry.Value,
		})
	}
	if rep, ok := e.relation.(metable.Replacer); ok {
		if err := rep.ReplaceAll(ctx, owner, recs); err != nil {
			return fmt.Errorf("restore meta for %s:%s: %w", owner.Kind, owner.ID, err)
		}
		return nil
	}
	if err := e.relation.DeleteAll(ctx, owner); err != nil {
		return fmt.Errorf("clear meta for %s:%s: %w", owner.Kind, owner.ID, err)
	}
	if len(recs) > 0 {
		if err := e.relation.InsertMany(ctx, recs); err != nil {
			return fmt.Errorf("restore meta for %s:%s: %w", owner.Kind, owner.ID, err)
		}
	}
	return nil
}

// ListSnapshots enumerates archived snapshots, optionally limited to one
// owner kind.
func (e *Exporter) ListSnapshots(ctx context.Context, ownerKind string) ([]ArchiveObjectInfo, error) {
	prefix := "meta/"
	if ownerKind != "" {
		prefix += ownerKind + "/"
	}
	return e.sink.List(ctx, prefix)
}
