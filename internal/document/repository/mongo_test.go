package repository

import (
	"context"
	"testing"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "d1"},
			{Key: "name", Value: "intro.md"},
			{Key: "content", Value: "hello"},
			{Key: "revision", Value: 3},
			{Key: "cdnResources", Value: bson.A{"a.png"}},
			{Key: "origin", Value: "internal"},
			{Key: "createdAt", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		}))
		d, err := r.Get(context.Background(), "d1")
		require.NoError(mt, err)
		require.Equal(mt, "intro.md", d.Name)
		require.Equal(mt, 3, d.Revision)
		require.Equal(mt, []string{"a.png"}, d.CdnResources)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err := r.Get(context.Background(), "nope")
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("list ids", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "d1"}},
			bson.D{{Key: "_id", Value: "d2"}},
		))
		ids, err := r.ListIDs(context.Background())
		require.NoError(mt, err)
		require.Equal(mt, []string{"d1", "d2"}, ids)
	})

	mt.Run("create", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		d := &document.Document{Name: "new.md"}
		id, err := r.Create(context.Background(), d)
		require.NoError(mt, err)
		require.NotEmpty(mt, id)
		require.Equal(mt, 1, d.Revision)
	})

	mt.Run("save upserts", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(mt, r.Save(context.Background(), &document.Document{ID: "d1"}))
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		r := NewMongoRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		require.ErrorIs(mt, r.Delete(context.Background(), "nope"), ErrNotFound)
	})
}
