package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/database/sqlite"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
)

type blog struct {
	eng  *Engine
	tag  *model.Meta
	post *model.Meta
}

func sqliteBlog(t *testing.T) blog {
	t.Helper()
	mgr := database.NewManager(database.DefaultConfig(database.DriverSQLite), sqlite.Backend, nil)
	t.Cleanup(func() { _ = mgr.Close() })
	eng := NewEngine(mgr, nil)

	reg := model.NewRegistry()
	tag := reg.MustDefine("Tag", "", model.Char("nome", 40, model.NotNull()))
	post := reg.MustDefine("Post", "",
		model.Char("titulo", 80),
		model.ManyToMany("tags", tag),
	)
	ctx := context.Background()
	require.NoError(t, eng.CreateTable(ctx, tag))
	require.NoError(t, eng.CreateTable(ctx, post))
	return blog{eng: eng, tag: tag, post: post}
}

func TestBuildLinkStatements(t *testing.T) {
	reg := model.NewRegistry()
	tag := reg.MustDefine("Tag", "", model.Char("nome", 40))
	post := reg.MustDefine("Post", "", model.ManyToMany("tags", tag))
	r := post.Relationship("tags")

	assert.Equal(t, `INSERT INTO "post_tag" ("post_id", "tag_id") VALUES ($1, $2)`,
		BuildLink(database.DialectPostgres, post, r))
	assert.Equal(t, "DELETE FROM `post_tag` WHERE `post_id` = ? AND `tag_id` = ?",
		BuildUnlink(database.DialectMySQL, post, r, true))
	assert.Equal(t, `DELETE FROM "post_tag" WHERE "post_id" = ?`,
		BuildUnlink(database.DialectSQLite, post, r, false))
	assert.Equal(t, `SELECT "tag"."id" AS "tag.id", "tag"."nome" AS "tag.nome" FROM "tag"`+
		` JOIN "post_tag" ON "post_tag"."tag_id" = "tag"."id"`+
		` WHERE "post_tag"."post_id" = $1 ORDER BY "tag"."id"`,
		BuildLinked(database.DialectPostgres, post, r))
}

func TestSQLite_LinkUnlinkLinked(t *testing.T) {
	b := sqliteBlog(t)
	ctx := context.Background()

	var tags []*model.Entity
	for _, nome := range []string{"go", "sql", "orm"} {
		tg := b.tag.MustNew(map[string]any{"nome": nome})
		require.NoError(t, b.eng.Save(ctx, tg))
		tags = append(tags, tg)
	}
	post := b.post.MustNew(map[string]any{"titulo": "Joins"})
	require.NoError(t, b.eng.Save(ctx, post))

	linked, err := b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	assert.Empty(t, linked)

	require.NoError(t, b.eng.Link(ctx, post, "tags", tags[2], tags[0]))
	linked, err = b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "Tag(id=1, nome=go)", linked[0].String())
	assert.Equal(t, "Tag(id=3, nome=orm)", linked[1].String())

	err = b.eng.Link(ctx, post, "tags", tags[1], tags[0])
	assert.True(t, errs.IsConflict(err), "pair already present, got %v", err)
	linked, err = b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	assert.Len(t, linked, 2, "a failed link writes nothing")

	require.NoError(t, b.eng.Unlink(ctx, post, "tags", tags[0]))
	linked, err = b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, int64(3), linked[0].ID())

	require.NoError(t, b.eng.Link(ctx, post, "tags", tags[1]))
	require.NoError(t, b.eng.Unlink(ctx, post, "tags"))
	linked, err = b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	assert.Empty(t, linked)

	require.NoError(t, b.eng.Link(ctx, post, "tags", tags[1]))
	require.NoError(t, b.eng.Delete(ctx, b.tag, tags[1]))
	linked, err = b.eng.Linked(ctx, post, "tags")
	require.NoError(t, err)
	assert.Empty(t, linked, "link rows go away with the target")

	require.NoError(t, b.eng.DeleteTable(ctx, b.post))
	tables, err := b.eng.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tag"}, tables)
}

func TestLink_Rejects(t *testing.T) {
	b := sqliteBlog(t)
	ctx := context.Background()

	saved := b.post.MustNew(map[string]any{"titulo": "x"})
	require.NoError(t, b.eng.Save(ctx, saved))
	tg := b.tag.MustNew(map[string]any{"nome": "go"})
	require.NoError(t, b.eng.Save(ctx, tg))

	tests := []struct {
		name string
		call func() error
		is   func(error) bool
	}{
		{"unsaved owner", func() error {
			return b.eng.Link(ctx, b.post.MustNew(nil), "tags", tg)
		}, errs.IsMissingID},
		{"unsaved target", func() error {
			return b.eng.Link(ctx, saved, "tags", b.tag.MustNew(map[string]any{"nome": "new"}))
		}, errs.IsMissingID},
		{"unknown relationship", func() error {
			return b.eng.Link(ctx, saved, "autores", tg)
		}, errs.IsUnknownField},
		{"wrong target type", func() error {
			return b.eng.Link(ctx, saved, "tags", saved)
		}, errs.IsTypeMismatch},
		{"nil target", func() error {
			return b.eng.Unlink(ctx, saved, "tags", nil)
		}, errs.IsInvalidInput},
		{"linked on unsaved owner", func() error {
			_, err := b.eng.Linked(ctx, b.post.MustNew(nil), "tags")
			return err
		}, errs.IsMissingID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, tt.is(err), "got %v", err)
		})
	}
}
