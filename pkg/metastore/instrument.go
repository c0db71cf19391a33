package metastore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"metastore/internal/metrics"
	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

// Compile-time contract assertions.
var (
	_ metable.Relation = (*instrumentedRelation)(nil)
	_ metable.Replacer = (*instrumentedRelation)(nil)
)

// instrumentedRelation decorates a relation with Prometheus counters and
// debug logging. It always satisfies Replacer: when the wrapped relation
// does not, ReplaceAll falls back to delete-then-insert.
type instrumentedRelation struct {
	next    metable.Relation
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newInstrumentedRelation(next metable.Relation, m *metrics.Metrics, log zerolog.Logger) *instrumentedRelation {
	return &instrumentedRelation{next: next, metrics: m, log: log}
}

func (r *instrumentedRelation) observe(op string, owner meta.OwnerRef, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	elapsed := time.Since(start)
	r.metrics.RecordRelationOp(op, status, elapsed)
	if err != nil {
		r.log.Error().Err(err).Str("operation", op).Str("owner_kind", owner.Kind).Str("owner_id", owner.ID).Msg("relation operation failed")
		return
	}
	r.log.Debug().Str("operation", op).Str("owner_kind", owner.Kind).Str("owner_id", owner.ID).Dur("elapsed", elapsed).Msg("relation operation")
}

func (r *instrumentedRelation) Load(ctx context.Context, owner meta.OwnerRef) ([]*meta.Meta, error) {
	start := time.Now()
	recs, err := r.next.Load(ctx, owner)
	r.observe("load", owner, start, err)
	return recs, err
}

func (r *instrumentedRelation) Create(ctx context.Context, rec *meta.Meta) error {
	start := time.Now()
	err := r.next.Create(ctx, rec)
	r.observe("create", rec.Owner, start, err)
	return err
}

func (r *instrumentedRelation) Save(ctx context.Context, rec *meta.Meta) error {
	start := time.Now()
	err := r.next.Save(ctx, rec)
	r.observe("save", rec.Owner, start, err)
	return err
}

func (r *instrumentedRelation) Delete(ctx context.Context, rec *meta.Meta) error {
	start := time.Now()
	err := r.next.Delete(ctx, rec)
	r.observe("delete", rec.Owner, start, err)
	return err
}

func (r *instrumentedRelation) DeleteAll(ctx context.Context, owner meta.OwnerRef) error {
	start := time.Now()
	err := r.next.DeleteAll(ctx, owner)
	r.observe("delete_all", owner, start, err)
	return err
}

func (r *instrumentedRelation) InsertMany(ctx context.Context, recs []*meta.Meta) error {
	start := time.Now()
	err := r.next.InsertMany(ctx, recs)
	owner := meta.OwnerRef{}
	if len(recs) > 0 {
		owner = recs[0].Owner
	}
	r.observe("insert_many", owner, start, err)
	return err
}

func (r *instrumentedRelation) ReplaceAll(ctx context.Context, owner meta.OwnerRef, recs []*meta.Meta) error {
	start := time.Now()
	var err error
	if rep, ok := r.next.(metable.Replacer); ok {
		err = rep.ReplaceAll(ctx, owner, recs)
	} else {
		if err = r.next.DeleteAll(ctx, owner); err == nil && len(recs) > 0 {
			err = r.next.InsertMany(ctx, recs)
		}
	}
	r.observe("replace_all", owner, start, err)
	return err
}
