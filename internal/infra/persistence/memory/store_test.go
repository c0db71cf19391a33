package memory

import (
	"context"
	"reflect"
	"testing"

	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

func owner(id string) meta.OwnerRef {
	return meta.OwnerRef{Kind: "users", ID: id}
}

func rec(o meta.OwnerRef, key string, tag meta.TypeTag, value string) *meta.Meta {
	return &meta.Meta{Owner: o, Key: key, Type: tag, Value: value}
}

func TestCreateLoadSaveDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := owner("u1")

	if err := s.Create(ctx, rec(o, "color", meta.TypeString, "blue")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, rec(o, "color", meta.TypeString, "red")); err == nil {
		t.Fatal("duplicate create must fail")
	}

	if err := s.Save(ctx, rec(o, "color", meta.TypeString, "green")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, rec(o, "size", meta.TypeInteger, "4")); err != nil {
		t.Fatalf("save new: %v", err)
	}

	recs, err := s.Load(ctx, o)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "color" || recs[1].Key != "size" {
		t.Fatalf("load = %v", recs)
	}
	if recs[0].Value != "green" {
		t.Fatalf("save did not upsert: %q", recs[0].Value)
	}

	if err := s.Delete(ctx, recs[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, rec(o, "ghost", meta.TypeString, "")); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	recs, _ = s.Load(ctx, o)
	if len(recs) != 1 || recs[0].Key != "size" {
		t.Fatalf("after delete: %v", recs)
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := owner("u1")
	if err := s.Create(ctx, rec(o, "color", meta.TypeString, "blue")); err != nil {
		t.Fatalf("create: %v", err)
	}

	recs, _ := s.Load(ctx, o)
	recs[0].Value = "mutated"

	again, _ := s.Load(ctx, o)
	if again[0].Value != "blue" {
		t.Fatal("store state shared with caller")
	}
}

func TestDeleteAllAndInsertMany(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := owner("u1")

	if err := s.InsertMany(ctx, []*meta.Meta{
		rec(o, "a", meta.TypeString, "1"),
		rec(o, "b", meta.TypeString, "2"),
	}); err != nil {
		t.Fatalf("insert many: %v", err)
	}
	if err := s.InsertMany(ctx, []*meta.Meta{rec(o, "a", meta.TypeString, "x")}); err == nil {
		t.Fatal("insert many must fail on collision")
	}

	if err := s.DeleteAll(ctx, o); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	recs, _ := s.Load(ctx, o)
	if len(recs) != 0 {
		t.Fatalf("after delete all: %v", recs)
	}
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := owner("u1")
	if err := s.Create(ctx, rec(o, "old", meta.TypeString, "x")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.ReplaceAll(ctx, o, []*meta.Meta{rec(o, "new", meta.TypeString, "y")}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	recs, _ := s.Load(ctx, o)
	if len(recs) != 1 || recs[0].Key != "new" {
		t.Fatalf("after replace: %v", recs)
	}

	if err := s.ReplaceAll(ctx, o, nil); err != nil {
		t.Fatalf("replace empty: %v", err)
	}
	recs, _ = s.Load(ctx, o)
	if len(recs) != 0 {
		t.Fatalf("after empty replace: %v", recs)
	}

	other := owner("u2")
	if err := s.ReplaceAll(ctx, o, []*meta.Meta{rec(other, "k", meta.TypeString, "v")}); err == nil {
		t.Fatal("foreign record must be rejected")
	}
}

// seedScopeFixtures loads three users with a color, a numeric weight and a
// partially present nickname key.
func seedScopeFixtures(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	fixtures := []*meta.Meta{
		rec(owner("u1"), "color", meta.TypeString, "blue"),
		rec(owner("u1"), "weight", meta.TypeInteger, "9"),
		rec(owner("u1"), "nickname", meta.TypeString, "ace"),
		rec(owner("u2"), "color", meta.TypeString, "red"),
		rec(owner("u2"), "weight", meta.TypeInteger, "10"),
		rec(owner("u3"), "color", meta.TypeString, "blue"),
		rec(owner("u3"), "weight", meta.TypeDouble, "2.5"),
		rec(meta.OwnerRef{Kind: "orgs", ID: "o1"}, "color", meta.TypeString, "blue"),
	}
	if err := s.InsertMany(ctx, fixtures); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newQuery() *metable.Query {
	return metable.NewQuery("users", meta.NewRegistry(nil))
}

func selectIDs(t *testing.T, s *Store, q *metable.Query) []string {
	t.Helper()
	ids, err := s.SelectOwnerIDs(context.Background(), q)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	return ids
}

func TestSelectOwnerIDsScopesToKind(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery())
	if !reflect.DeepEqual(ids, []string{"u1", "u2", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereHasMeta(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().WhereHasMeta("nickname"))
	if !reflect.DeepEqual(ids, []string{"u1"}) {
		t.Fatalf("ids = %v", ids)
	}

	// Any of the listed keys suffices.
	ids = selectIDs(t, s, newQuery().WhereHasMeta("nickname", "color"))
	if !reflect.DeepEqual(ids, []string{"u1", "u2", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}

	// No keys matches nothing.
	ids = selectIDs(t, s, newQuery().WhereHasMeta())
	if len(ids) != 0 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereHasMetaKeys(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().WhereHasMetaKeys("color", "nickname"))
	if !reflect.DeepEqual(ids, []string{"u1"}) {
		t.Fatalf("ids = %v", ids)
	}

	// The empty key set is vacuously satisfied.
	ids = selectIDs(t, s, newQuery().WhereHasMetaKeys())
	if !reflect.DeepEqual(ids, []string{"u1", "u2", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereMetaStringComparison(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().WhereMeta("color", "=", "blue"))
	if !reflect.DeepEqual(ids, []string{"u1", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}

	ids = selectIDs(t, s, newQuery().WhereMeta("color", "<>", "blue"))
	if !reflect.DeepEqual(ids, []string{"u2"}) {
		t.Fatalf("ids = %v", ids)
	}

	// Owners lacking the key never match, whatever the operator.
	ids = selectIDs(t, s, newQuery().WhereMeta("nickname", "<>", "zzz"))
	if !reflect.DeepEqual(ids, []string{"u1"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereMetaStringOrderIsLexicographic(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	// "10" < "9" as strings even though 10 > 9 numerically.
	ids := selectIDs(t, s, newQuery().WhereMeta("weight", "<", "9"))
	if !reflect.DeepEqual(ids, []string{"u2", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereMetaNumericComparison(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().WhereMetaNumeric("weight", "<", 9))
	if !reflect.DeepEqual(ids, []string{"u3"}) {
		t.Fatalf("ids = %v", ids)
	}

	ids = selectIDs(t, s, newQuery().WhereMetaNumeric("weight", ">=", 9))
	if !reflect.DeepEqual(ids, []string{"u1", "u2"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereMetaNumericSkipsUnparseablePayloads(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedScopeFixtures(t, s)
	if err := s.Create(ctx, rec(owner("u4"), "weight", meta.TypeString, "heavy")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ids := selectIDs(t, s, newQuery().WhereMetaNumeric("weight", ">", 0))
	if !reflect.DeepEqual(ids, []string{"u1", "u2", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWhereMetaIn(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().WhereMetaIn("color", "red", "green"))
	if !reflect.DeepEqual(ids, []string{"u2"}) {
		t.Fatalf("ids = %v", ids)
	}

	ids = selectIDs(t, s, newQuery().WhereMetaIn("color"))
	if len(ids) != 0 {
		t.Fatalf("empty value list must match nothing: %v", ids)
	}
}

func TestOrderByMetaString(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().OrderByMeta("color", "asc"))
	if !reflect.DeepEqual(ids, []string{"u1", "u3", "u2"}) {
		t.Fatalf("asc ids = %v", ids)
	}

	ids = selectIDs(t, s, newQuery().OrderByMeta("color", "desc"))
	if !reflect.DeepEqual(ids, []string{"u2", "u1", "u3"}) {
		t.Fatalf("desc ids = %v", ids)
	}
}

func TestOrderByMetaNumericVsString(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	// Lexicographic: "10" < "2.5" < "9".
	ids := selectIDs(t, s, newQuery().OrderByMeta("weight", "asc"))
	if !reflect.DeepEqual(ids, []string{"u2", "u3", "u1"}) {
		t.Fatalf("string ids = %v", ids)
	}

	// Numeric: 2.5 < 9 < 10.
	ids = selectIDs(t, s, newQuery().OrderByMetaNumeric("weight", "asc"))
	if !reflect.DeepEqual(ids, []string{"u3", "u1", "u2"}) {
		t.Fatalf("numeric ids = %v", ids)
	}
}

func TestOrderByMetaAbsentKeyPlacement(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedScopeFixtures(t, s)
	if err := s.Create(ctx, rec(owner("u4"), "color", meta.TypeString, "amber")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// u2 and u3 lack nickname: absent sorts first ascending.
	ids := selectIDs(t, s, newQuery().OrderByMeta("nickname", "asc"))
	if !reflect.DeepEqual(ids, []string{"u2", "u3", "u4", "u1"}) {
		t.Fatalf("asc ids = %v", ids)
	}

	// And last descending.
	ids = selectIDs(t, s, newQuery().OrderByMeta("nickname", "desc"))
	if !reflect.DeepEqual(ids, []string{"u1", "u2", "u3", "u4"}) {
		t.Fatalf("desc ids = %v", ids)
	}
}

func TestFilterAndOrderCombine(t *testing.T) {
	s := NewStore()
	seedScopeFixtures(t, s)

	ids := selectIDs(t, s, newQuery().
		WhereMeta("color", "=", "blue").
		OrderByMetaNumeric("weight", "desc"))
	if !reflect.DeepEqual(ids, []string{"u1", "u3"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestSelectOwnerIDsPropagatesQueryErr(t *testing.T) {
	s := NewStore()
	q := newQuery().WhereMeta("bad", "=", make(chan int))
	if _, err := s.SelectOwnerIDs(context.Background(), q); err == nil {
		t.Fatal("construction error must surface at execution")
	}
}
