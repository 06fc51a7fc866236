package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedPublishable stores a draft that satisfies every publish rule.
func seedPublishable(t *testing.T, db *gorm.DB, id string) repositories.OmamoriRepository {
	repo := repositories.NewOmamoriRepository(db)
	ctx := context.Background()
	colorID, frameID := "c1", "f1"
	require.NoError(t, db.Create(&models.Color{Id: colorID, Label: "Crimson", Hex: "#dc143c"}).Error)
	require.NoError(t, db.Create(&models.Frame{Id: frameID, Label: "Classic"}).Error)
	require.NoError(t, repo.SaveOmamori(ctx, &models.Omamori{
		Id: id, UserID: "u1", Status: models.StatusDraft, ColorID: &colorID, FrameID: &frameID,
	}))
	require.NoError(t, repo.CreateElement(ctx, &models.Element{
		Id: id + "-e1", OmamoriID: id, Type: models.ElementTypeText, Layer: 1,
	}))
	return repo
}

func TestPublish_ReportsAllViolationsTogether(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewOmamoriRepository(db)
	require.NoError(t, repo.SaveOmamori(context.Background(), &models.Omamori{
		Id: "om1", UserID: "u1", Status: models.StatusDraft,
	}))
	svc := services.NewLifecycleService(repo)

	_, err := svc.Publish(context.Background(), "om1")
	apiErr := asAPIError(t, err)
	assert.Equal(t, 422, apiErr.Status)
	assert.True(t, apiErr.HasCode(models.RuleColorRequired))
	assert.True(t, apiErr.HasCode(models.RuleFrameRequired))
	assert.True(t, apiErr.HasCode(models.RuleElementsRequired))

	// no state change on a failed publish
	om, err := repo.GetOmamoriByID(context.Background(), "om1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, om.Status)
	assert.Nil(t, om.PublishedAt)
}

func TestPublish_PartialViolation(t *testing.T) {
	db := setupDB(t)
	repo := seedPublishable(t, db, "om1")
	ctx := context.Background()
	om, err := repo.GetOmamoriByID(ctx, "om1")
	require.NoError(t, err)
	om.ColorID = nil
	require.NoError(t, repo.UpdateOmamori(ctx, *om))
	svc := services.NewLifecycleService(repo)

	_, err = svc.Publish(ctx, "om1")
	apiErr := asAPIError(t, err)
	assert.True(t, apiErr.HasCode(models.RuleColorRequired))
	assert.False(t, apiErr.HasCode(models.RuleFrameRequired))
	assert.False(t, apiErr.HasCode(models.RuleElementsRequired))
}

func TestPublish_SetsTimestampAndIsIdempotent(t *testing.T) {
	db := setupDB(t)
	repo := seedPublishable(t, db, "om1")
	svc := services.NewLifecycleService(repo)
	ctx := context.Background()

	published, err := svc.Publish(ctx, "om1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	first := *published.PublishedAt

	// published → published is a no-op and keeps the original timestamp
	again, err := svc.Publish(ctx, "om1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, again.Status)
	require.NotNil(t, again.PublishedAt)
	assert.True(t, again.PublishedAt.Equal(first))
}

func TestSaveDraft_ClearsTimestampAndHidesPosts(t *testing.T) {
	db := setupDB(t)
	repo := seedPublishable(t, db, "om1")
	svc := services.NewLifecycleService(repo)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Post{Id: "p1", OmamoriID: "om1", UserID: "u2", Body: "nice"}).Error)

	_, err := svc.Publish(ctx, "om1")
	require.NoError(t, err)

	drafted, err := svc.SaveDraft(ctx, "om1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, drafted.Status)
	assert.Nil(t, drafted.PublishedAt)

	om, err := repo.GetOmamoriByID(ctx, "om1")
	require.NoError(t, err)
	assert.Nil(t, om.PublishedAt)

	var post models.Post
	require.NoError(t, db.First(&post, "id = ?", "p1").Error)
	assert.True(t, post.Hidden)
}

func TestSaveDraft_OnDraftIsNoop(t *testing.T) {
	db := setupDB(t)
	repo := seedPublishable(t, db, "om1")
	svc := services.NewLifecycleService(repo)

	om, err := svc.SaveDraft(context.Background(), "om1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, om.Status)
}

func TestPublishDraftPublish_RefreshesTimestamp(t *testing.T) {
	db := setupDB(t)
	repo := seedPublishable(t, db, "om1")
	svc := services.NewLifecycleService(repo)
	ctx := context.Background()

	first, err := svc.Publish(ctx, "om1")
	require.NoError(t, err)
	firstAt := *first.PublishedAt

	_, err = svc.SaveDraft(ctx, "om1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := svc.Publish(ctx, "om1")
	require.NoError(t, err)
	require.NotNil(t, second.PublishedAt)
	assert.True(t, second.PublishedAt.After(firstAt), "re-publish must stamp a fresh timestamp")
}
