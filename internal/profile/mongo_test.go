package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

const testNS = "qchat.user_profiles"

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get migrates stored document", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "abc"},
			{Key: "username", Value: "alice"},
			{Key: "major", Value: "Mathematics"},
			{Key: "schedule", Value: bson.D{
				{Key: "classes", Value: bson.A{bson.D{{Key: "code", Value: "MTH101"}}}},
				{Key: "extracurriculars", Value: bson.A{"Debate"}},
			}},
			{Key: "notes", Value: bson.A{"Lives off campus"}},
		}))

		p, err := s.Get(context.Background(), "alice")
		require.NoError(mt, err)
		assert.Equal(mt, "alice", p.Username)
		assert.Equal(mt, SchemaVersion, p.Version)
		assert.Equal(mt, "Mathematics", p.PersonalInfo.Major)
		require.Len(mt, p.Schedule.Classes, 1)
		assert.Equal(mt, "MTH101", p.Schedule.Classes[0].Code)
		assert.Equal(mt, []string{"Debate"}, p.Schedule.Extracurriculars)
		require.Len(mt, p.Notes, 1)
		assert.Equal(mt, "Lives off campus", p.Notes[0].Text)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch))

		_, err := s.Get(context.Background(), "ghost")
		assert.ErrorIs(mt, err, domerrors.ErrNotFound)
	})

	mt.Run("get command failure", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 13, Name: "Unauthorized", Message: "not authorized",
		}))

		_, err := s.Get(context.Background(), "alice")
		assert.ErrorIs(mt, err, domerrors.ErrStoreUnavailable)
	})

	mt.Run("create", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		p, err := s.Create(context.Background(), "bob")
		require.NoError(mt, err)
		assert.Equal(mt, "bob", p.Username)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))

		_, err := s.Create(context.Background(), "bob")
		assert.ErrorIs(mt, err, ErrExists)
	})

	mt.Run("update matched", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		assert.True(mt, s.Update(context.Background(), "bob", map[string]any{PathMajor: "History"}))
	})

	mt.Run("update unmatched", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		assert.False(mt, s.Update(context.Background(), "ghost", map[string]any{PathMajor: "History"}))
	})

	mt.Run("update rejected before write", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		assert.False(mt, s.Update(context.Background(), "bob", map[string]any{"version": 9}))
	})

	mt.Run("append to array", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		assert.True(mt, s.AppendToArray(context.Background(), "bob", PathExtracurriculars, "Rowing"))
		assert.False(mt, s.AppendToArray(context.Background(), "bob", PathMajor, "History"))
	})

	mt.Run("update write failure", func(mt *mtest.T) {
		s := newMongoStore(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "bad value",
		}))

		assert.False(mt, AddNote(context.Background(), s, "bob", "Likes quiet floors"))
	})
}
