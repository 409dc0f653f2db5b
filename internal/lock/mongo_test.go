package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("take lock", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(),
		)
		l, err := s.TakeLock(context.Background(), TaskLockKey("t1"), time.Minute)
		require.NoError(mt, err)
		require.Equal(mt, "task:t1", l.Key)
		require.NotEmpty(mt, l.Owner)
		require.True(mt, l.ExpiresOn.After(time.Now()))
	})

	mt.Run("duplicate key means taken", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
		)
		_, err := s.TakeLock(context.Background(), TaskLockKey("t1"), time.Minute)
		require.ErrorIs(mt, err, ErrLockTaken)
	})

	mt.Run("other write errors are surfaced", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 2, Message: "bad value"}),
		)
		_, err := s.TakeLock(context.Background(), TaskLockKey("t1"), time.Minute)
		require.Error(mt, err)
		require.NotErrorIs(mt, err, ErrLockTaken)
	})

	mt.Run("release", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, s.ReleaseLock(context.Background(), &Lock{Key: "task:t1", Owner: "o"}))
		require.NoError(mt, s.ReleaseLock(context.Background(), nil))
	})

	mt.Run("extend", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		l := &Lock{Key: "task:t1", Owner: "o"}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, s.ExtendLock(context.Background(), l, time.Minute))
		require.False(mt, l.ExpiresOn.IsZero())

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		require.ErrorIs(mt, s.ExtendLock(context.Background(), l, time.Minute), ErrLockTaken)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, s.EnsureIndexes(context.Background()))
	})
}
