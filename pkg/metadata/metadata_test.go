package metadata

import (
	"datamapper/pkg/domain"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type recordingRegistrar struct {
	tables []string
	fail   bool
}

func (r *recordingRegistrar) SetupEntityMetadata(md domain.EntityMetadata) error {
	if r.fail {
		return errors.New("boom")
	}
	r.tables = append(r.tables, md.TableName)
	return nil
}

func TestRegistryIncrementalDeclarations(t *testing.T) {
	reg := NewRegistry()
	reg.Declare("child", func(md *domain.EntityMetadata) {
		md.TableName = "children"
		md.AddManyToOne("parent", "parents")
	})
	reg.Declare("parent", func(md *domain.EntityMetadata) {
		md.TableName = "parents"
		md.IDProperty = "id"
		md.AddField("id", "id")
	})
	reg.Declare("child", func(md *domain.EntityMetadata) {
		md.IDProperty = "id"
		md.AddField("id", "id")
		md.AddField("parent", "id")
	})

	child, ok := reg.Lookup("child")
	if !ok {
		t.Fatalf("expected child metadata")
	}
	if child.TableName != "children" || len(child.Fields) != 2 || len(child.ManyToOne) != 1 {
		t.Fatalf("unexpected accumulated metadata: %+v", child)
	}
	child.Fields[0].Column = "mutated"
	again, _ := reg.Lookup("child")
	if again.Fields[0].Column != "id" {
		t.Fatalf("lookup must return a copy")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("expected missing type")
	}

	rec := &recordingRegistrar{}
	if err := reg.SetupPersister(rec); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if strings.Join(rec.tables, ",") != "children,parents" {
		t.Fatalf("expected declaration order, got %v", rec.tables)
	}
	if err := reg.SetupPersister(&recordingRegistrar{fail: true}); err == nil {
		t.Fatalf("expected setup error")
	}
}

func TestDefaultRegistryDeclare(t *testing.T) {
	Declare("default-registry-audit", func(md *domain.EntityMetadata) { md.TableName = "audit" })
	md, ok := Default().Lookup("default-registry-audit")
	if !ok || md.TableName != "audit" {
		t.Fatalf("expected declaration on default registry, got %+v", md)
	}
}

func TestDeclareMayReadRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Declare("parent", func(md *domain.EntityMetadata) { md.TableName = "parents" })
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Declare("child", func(md *domain.EntityMetadata) {
			parent, ok := reg.Lookup("parent")
			if !ok {
				return
			}
			md.TableName = "children"
			md.AddManyToOne("parent", parent.TableName)
			if _, seen := reg.Lookup("child"); seen {
				md.TableName = "premature"
			}
			md.IDProperty = fmt.Sprint(len(reg.Types()))
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Declare blocked while mutate read the registry")
	}
	child, ok := reg.Lookup("child")
	if !ok || child.TableName != "children" || child.IDProperty != "1" {
		t.Fatalf("unexpected child record %+v", child)
	}
	if len(child.ManyToOne) != 1 || child.ManyToOne[0].MappedTable != "parents" {
		t.Fatalf("expected relation to parents, got %+v", child.ManyToOne)
	}
	if got := reg.Types(); len(got) != 2 || got[1] != "child" {
		t.Fatalf("expected declaration order, got %v", got)
	}
}

func TestManagerLastWriteWinsAndNotFound(t *testing.T) {
	m := NewManager()
	if _, err := m.ByTable("parents"); !errors.Is(err, domain.ErrMetadataNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	first := parentMetadata()
	if err := m.Setup(first); err != nil {
		t.Fatalf("setup: %v", err)
	}
	second := parentMetadata()
	second.AddField("name", "name")
	if err := m.Setup(second); err != nil {
		t.Fatalf("setup: %v", err)
	}
	got, err := m.ByTable("parents")
	if err != nil {
		t.Fatalf("by table: %v", err)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("expected last write to win, got %+v", got)
	}
	if err := m.Setup(domain.EntityMetadata{TableName: "broken"}); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tables := m.Tables(); len(tables) != 1 || tables[0] != "parents" {
		t.Fatalf("unexpected tables %v", tables)
	}
}

func TestReferenceFields(t *testing.T) {
	m := NewManager()
	parent := parentMetadata()
	parent.AddOneToMany("children", "parentRef", "children")
	child := domain.EntityMetadata{TableName: "children", IDProperty: "id"}
	child.AddField("id", "id")
	child.AddField("parentRef", "id")
	child.AddField("owner", "id")
	child.AddManyToOne("owner", "parents")
	for _, md := range []domain.EntityMetadata{parent, child} {
		if err := m.Setup(md); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	refs, err := ReferenceFields(m, "children")
	if err != nil {
		t.Fatalf("reference fields: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected two reference fields, got %+v", refs)
	}
	if refs[0].Field.Property != "owner" || refs[1].Field.Property != "parentRef" {
		t.Fatalf("unexpected ordering %+v", refs)
	}
	for _, ref := range refs {
		if ref.Target != "parents" || ref.JoinProperty != "id" {
			t.Fatalf("unexpected reference %+v", ref)
		}
	}
	parentRefs, err := ReferenceFields(m, "parents")
	if err != nil || len(parentRefs) != 0 {
		t.Fatalf("expected no references on parents, got %v %v", parentRefs, err)
	}

	dangling := child.Clone()
	dangling.TableName = "orphans"
	dangling.ManyToOne = []domain.ManyToOneRelation{{Property: "owner", MappedTable: "ghosts"}}
	if err := m.Setup(dangling); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := ReferenceFields(m, "orphans"); !errors.Is(err, domain.ErrMetadataNotFound) {
		t.Fatalf("expected unresolved target, got %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	src := `{"entities":[
		{"type":"parent","table_name":"parents","id_property":"id",
		 "fields":[{"property":"id","column":"id"}],
		 "one_to_many":[{"property":"children","mapped_by":"parent","mapped_table":"children"}]},
		{"table_name":"children","id_property":"id",
		 "fields":[{"property":"id","column":"id"},{"property":"parent","column":"id"}]}
	]}`
	reg := NewRegistry()
	if err := reg.LoadJSON(strings.NewReader(src)); err != nil {
		t.Fatalf("load: %v", err)
	}
	parent, ok := reg.Lookup("parent")
	if !ok || len(parent.OneToMany) != 1 || parent.OneToMany[0].MappedBy != "parent" {
		t.Fatalf("unexpected parent declaration %+v", parent)
	}
	if _, ok := reg.Lookup("children"); !ok {
		t.Fatalf("expected type to default to table name")
	}
	if err := reg.LoadJSON(strings.NewReader(`{"entities":[{"bogus":1}]}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func parentMetadata() domain.EntityMetadata {
	md := domain.EntityMetadata{TableName: "parents", IDProperty: "id"}
	md.AddField("id", "id")
	return md
}
