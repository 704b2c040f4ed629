package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
	testdb "github.com/newsloom/newsloom/test/database"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	client := testdb.NewTestClient(t)
	return store.New(client.Pool())
}

func sampleRawItem(kind models.SourceKind, sourceID string) *models.RawItem {
	return &models.RawItem{
		SourceKind: kind,
		SourceID:   sourceID,
		Title:      "New release of the standard toolchain",
		Body:       "The release ships faster builds and a smaller runtime footprint.",
		URL:        "https://example.com/posts/" + sourceID,
		Author:     "annel",
		SourceMetadata: map[string]any{
			"score":    float64(42),
			"comments": float64(7),
		},
	}
}

func sampleProcessedItem(kind models.SourceKind, sourceID string) *models.ProcessedItem {
	return &models.ProcessedItem{
		SourceKind:      kind,
		SourceID:        sourceID,
		IsRelevant:      true,
		RelevanceScore:  0.91,
		RelevanceReason: "major toolchain release",
		EditorialTitle:  "Toolchain release lands",
		EditorialTeaser: "Faster builds for everyone.",
		EditorialBody:   "The latest toolchain release focuses on build speed.",
		ImagePrompt:     "a conveyor belt assembling gears",
		ContentType:     models.ContentNews,
		ModelName:       "gpt-oss:20b",
		ProcessingMS:    1250,
	}
}

func sampleShortFormItem(kind models.SourceKind, sourceID string) *models.ShortFormItem {
	return &models.ShortFormItem{
		SourceKind: kind,
		SourceID:   sourceID,
		Title:      "Toolchain release lands",
		Body:       "Faster builds for everyone.",
		Hashtags:   []string{"#golang", "#tooling", "#release"},
		Formatted:  "**Toolchain release lands**\n\nFaster builds for everyone.\n\n#golang #tooling #release",
	}
}

func TestRawItemRepo_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := sampleRawItem(models.SourceForumPost, "abc123")
	require.NoError(t, s.Raw.Save(ctx, item))
	assert.NotZero(t, item.ID)
	assert.False(t, item.FetchedAt.IsZero())

	exists, err := s.Raw.ExistsBySourceID(ctx, models.SourceForumPost, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.Raw.GetBySourceID(ctx, models.SourceForumPost, "abc123")
	require.NoError(t, err)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Body, got.Body)
	assert.Equal(t, "annel", got.Author)
	assert.Equal(t, float64(42), got.SourceMetadata["score"])
	assert.Nil(t, got.VectorID)

	// Same source identity is rejected regardless of the other fields.
	dup := sampleRawItem(models.SourceForumPost, "abc123")
	dup.Title = "different title"
	err = s.Raw.Save(ctx, dup)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	// Same source_id under a different kind is a distinct item.
	other := sampleRawItem(models.SourceTechArticle, "abc123")
	require.NoError(t, s.Raw.Save(ctx, other))

	_, err = s.Raw.GetBySourceID(ctx, models.SourceForumPost, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRawItemRepo_AttachVectorID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := sampleRawItem(models.SourceChatMessage, "msg-1")
	require.NoError(t, s.Raw.Save(ctx, item))

	vectorID := uuid.New()
	require.NoError(t, s.Raw.AttachVectorID(ctx, models.SourceChatMessage, "msg-1", vectorID))

	got, err := s.Raw.GetBySourceID(ctx, models.SourceChatMessage, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, got.VectorID)
	assert.Equal(t, vectorID, *got.VectorID)

	err = s.Raw.AttachVectorID(ctx, models.SourceChatMessage, "missing", vectorID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRawItemRepo_ListOrderAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		item := sampleRawItem(models.SourceBlogArticle, id)
		item.FetchedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Raw.Save(ctx, item))
	}

	items, err := s.Raw.ListBySource(ctx, models.SourceBlogArticle, 2, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].SourceID)
	assert.Equal(t, "mid", items[1].SourceID)

	items, err = s.Raw.ListBySource(ctx, models.SourceBlogArticle, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "old", items[0].SourceID)

	count, err := s.Raw.CountByKind(ctx, models.SourceBlogArticle)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	latest, err := s.Raw.LatestFetchedAt(ctx, models.SourceBlogArticle)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.WithinDuration(t, base.Add(2*time.Minute), *latest, time.Second)

	// Empty kind: zero count, nil latest.
	count, err = s.Raw.CountByKind(ctx, models.SourceForumPost)
	require.NoError(t, err)
	assert.Zero(t, count)
	latest, err = s.Raw.LatestFetchedAt(ctx, models.SourceForumPost)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRawItemRepo_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kind, sourceID := models.SourceForumPost, "cascade-1"
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, sourceID)))
	require.NoError(t, s.Processed.Save(ctx, sampleProcessedItem(kind, sourceID)))
	require.NoError(t, s.ShortForm.Save(ctx, sampleShortFormItem(kind, sourceID)))

	require.NoError(t, s.Raw.DeleteBySourceID(ctx, kind, sourceID))

	_, err := s.Processed.GetBySourceID(ctx, kind, sourceID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ShortForm.GetBySourceID(ctx, kind, sourceID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Raw.DeleteBySourceID(ctx, kind, sourceID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessedItemRepo_SaveAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kind := models.SourceTechArticle
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, "t1")))
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, "t2")))

	relevant := sampleProcessedItem(kind, "t1")
	require.NoError(t, s.Processed.Save(ctx, relevant))
	assert.NotZero(t, relevant.ID)

	irrelevant := &models.ProcessedItem{
		SourceKind:      kind,
		SourceID:        "t2",
		IsRelevant:      false,
		RelevanceScore:  0.2,
		RelevanceReason: "vendor promotion",
		ModelName:       "gpt-oss:20b",
	}
	require.NoError(t, s.Processed.Save(ctx, irrelevant))

	got, err := s.Processed.GetBySourceID(ctx, kind, "t1")
	require.NoError(t, err)
	assert.True(t, got.IsRelevant)
	assert.Equal(t, models.ContentNews, got.ContentType)
	assert.Equal(t, "Toolchain release lands", got.EditorialTitle)

	got, err = s.Processed.GetBySourceID(ctx, kind, "t2")
	require.NoError(t, err)
	assert.False(t, got.IsRelevant)
	assert.Empty(t, got.EditorialTitle)
	assert.Empty(t, got.ContentType)

	total, relevantCount, err := s.Processed.CountByKind(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), relevantCount)

	err = s.Processed.Save(ctx, sampleProcessedItem(kind, "t1"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestShortFormRepo_SaveAndPublish(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kind, sourceID := models.SourceBlogArticle, "b1"
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, sourceID)))

	item := sampleShortFormItem(kind, sourceID)
	require.NoError(t, s.ShortForm.Save(ctx, item))
	assert.Equal(t, len([]rune(item.Formatted)), item.CharCount)

	got, err := s.ShortForm.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
	assert.False(t, got.IsPublished)
	assert.Nil(t, got.PublishedAt)
	assert.Nil(t, got.PlatformMessageID)
	assert.Equal(t, []string{"#golang", "#tooling", "#release"}, got.Hashtags)

	publishedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.ShortForm.MarkPublished(ctx, kind, sourceID, 98765, publishedAt))

	got, err = s.ShortForm.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
	assert.True(t, got.IsPublished)
	require.NotNil(t, got.PublishedAt)
	require.NotNil(t, got.PlatformMessageID)
	assert.Equal(t, int64(98765), *got.PlatformMessageID)
	assert.WithinDuration(t, publishedAt, *got.PublishedAt, time.Second)

	err = s.ShortForm.MarkPublished(ctx, kind, "missing", 1, publishedAt)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_FinalizeItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kind, sourceID := models.SourceForumPost, "fin-1"
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, sourceID)))

	vectorID := uuid.New()
	err := s.FinalizeItem(ctx, kind, sourceID, &vectorID,
		sampleProcessedItem(kind, sourceID), sampleShortFormItem(kind, sourceID))
	require.NoError(t, err)

	raw, err := s.Raw.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
	require.NotNil(t, raw.VectorID)
	assert.Equal(t, vectorID, *raw.VectorID)

	_, err = s.Processed.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
	_, err = s.ShortForm.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
}

func TestStore_FinalizeItem_RollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kind, sourceID := models.SourceForumPost, "fin-2"
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(kind, sourceID)))

	firstVector := uuid.New()
	require.NoError(t, s.FinalizeItem(ctx, kind, sourceID, &firstVector,
		sampleProcessedItem(kind, sourceID), nil))

	// The second finalize attaches a new vector ID but fails on the duplicate
	// processed row. The whole transaction must roll back, leaving the
	// original vector reference intact.
	secondVector := uuid.New()
	err := s.FinalizeItem(ctx, kind, sourceID, &secondVector,
		sampleProcessedItem(kind, sourceID), nil)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	raw, err := s.Raw.GetBySourceID(ctx, kind, sourceID)
	require.NoError(t, err)
	require.NotNil(t, raw.VectorID)
	assert.Equal(t, firstVector, *raw.VectorID)
}

func TestStore_CollectStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(models.SourceForumPost, "s1")))
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(models.SourceForumPost, "s2")))
	require.NoError(t, s.Raw.Save(ctx, sampleRawItem(models.SourceTechArticle, "s3")))

	require.NoError(t, s.Processed.Save(ctx, sampleProcessedItem(models.SourceForumPost, "s1")))
	require.NoError(t, s.ShortForm.Save(ctx, sampleShortFormItem(models.SourceForumPost, "s1")))

	stats, err := s.CollectStats(ctx)
	require.NoError(t, err)

	require.Len(t, stats.Kinds, len(models.AllSourceKinds))
	byKind := make(map[models.SourceKind]store.KindStats, len(stats.Kinds))
	for _, ks := range stats.Kinds {
		byKind[ks.SourceKind] = ks
	}

	assert.Equal(t, int64(2), byKind[models.SourceForumPost].RawItems)
	assert.Equal(t, int64(1), byKind[models.SourceForumPost].ProcessedItems)
	assert.Equal(t, int64(1), byKind[models.SourceForumPost].RelevantItems)
	assert.Equal(t, int64(1), byKind[models.SourceForumPost].ShortFormItems)
	assert.Equal(t, int64(0), byKind[models.SourceForumPost].PublishedItems)
	assert.NotNil(t, byKind[models.SourceForumPost].LatestFetchedAt)

	assert.Equal(t, int64(1), byKind[models.SourceTechArticle].RawItems)
	assert.Nil(t, byKind[models.SourceChatMessage].LatestFetchedAt)

	assert.Equal(t, int64(3), stats.TotalRaw)
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalRelevant)
	assert.Equal(t, int64(1), stats.TotalShortForm)
	assert.Equal(t, int64(0), stats.TotalPublished)
}
