package omamori_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/loopfz/gadgeto/tonic"
	omamori "github.com/omamori-atelier/omamori-api/pkg/omamori"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/handler"
	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/services"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errorHookOnce sync.Once

func setupErrorHook() {
	errorHookOnce.Do(func() {
		tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
			var be tonic.BindError
			if errors.As(err, &be) || isValidationErr(err) {
				invalids := invalidParamsFromBinding(err, models.CreateOmamoriInput{})
				apiErr := problem.NewBadRequest("body", "Invalid input", invalids...)
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			if apiErr, ok := err.(problem.APIError); ok {
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			internal := problem.NewInternalServerError(err.Error())
			c.Header("Content-Type", "application/problem+json")
			return internal.Status, internal
		})
	})
}

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: fe.Error(),
		})
	}
	return out
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

type integrationEnv struct {
	server *httptest.Server
	repo   repositories.OmamoriRepository
	client *http.Client
	token  string
}

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("integration-test-secret"))
	require.NoError(t, err)
	return signed
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	setupErrorHook()

	// a named in-memory database so gorm's pooled connections share state
	// without leaking between tests
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Omamori{},
		&models.Element{},
		&models.Color{},
		&models.Frame{},
		&models.Post{},
	))

	require.NoError(t, db.Create(&models.Color{Id: "c-crimson", Label: "Crimson", Hex: "#dc143c"}).Error)
	require.NoError(t, db.Create(&models.Frame{Id: "f-classic", Label: "Classic", IsDefault: true}).Error)

	repo := repositories.NewOmamoriRepository(db)
	controller := handler.NewOmamoriController(
		services.NewOmamoriService(repo),
		services.NewElementService(repo),
		services.NewLifecycleService(repo),
		services.NewDuplicateService(repo),
	)
	router := omamori.NewRouter("test-version", controller)
	server := testutil.NewTestServer(t, router)

	return &integrationEnv{
		server: server,
		repo:   repo,
		client: &http.Client{Timeout: 2 * time.Second},
		token:  signedToken(t, "user-1"),
	}
}

func (e *integrationEnv) doJSONRequest(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	err = json.Unmarshal(data, &out)
	require.NoErrorf(t, err, "body=%s", string(data))
	return out
}

func TestOmamoriLifecycleRun(t *testing.T) {
	env := newIntegrationEnv(t)

	var omamoriID string
	t.Run("create draft with default frame", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori", map[string]any{
			"title":       "Protection charm",
			"description": "For safe travels",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "test-version", resp.Header.Get("API-Version"))

		summary := decodeBody[models.OmamoriSummary](t, resp)
		require.NotEmpty(t, summary.Id)
		require.Equal(t, models.StatusDraft, summary.Status)
		require.NotNil(t, summary.FrameID)
		require.Equal(t, "f-classic", *summary.FrameID)
		omamoriID = summary.Id
	})

	t.Run("create without title fails binding", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori", map[string]any{
			"description": "no title",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.Equal(t, 400, prob.Status)
	})

	t.Run("publish without color or elements reports every rule", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori/"+omamoriID+"/publish", nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.Equal(t, 422, prob.Status)
		require.True(t, prob.HasCode(models.RuleColorRequired))
		require.True(t, prob.HasCode(models.RuleElementsRequired))
		require.False(t, prob.HasCode(models.RuleFrameRequired), "default frame satisfies the frame rule")
	})

	var textID, stampID string
	t.Run("compose elements", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPut, "/v1/omamori/"+omamoriID+"/elements/background", map[string]any{
			"props": map[string]any{"kind": "gradient", "from": "#fff", "to": "#f00"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		bg := decodeBody[models.ElementView](t, resp)
		require.Equal(t, 0, bg.Layer)

		resp = env.doJSONRequest(t, http.MethodPost, "/v1/omamori/"+omamoriID+"/elements", map[string]any{
			"type":  models.ElementTypeText,
			"props": map[string]any{"text": "health"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		text := decodeBody[models.ElementView](t, resp)
		require.Equal(t, 1, text.Layer)
		textID = text.Id

		resp = env.doJSONRequest(t, http.MethodPost, "/v1/omamori/"+omamoriID+"/elements", map[string]any{
			"type":  models.ElementTypeStamp,
			"props": map[string]any{"asset_key": "sakura"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		stamp := decodeBody[models.ElementView](t, resp)
		require.Equal(t, 2, stamp.Layer)
		stampID = stamp.Id
	})

	t.Run("patch cannot change type", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPatch, "/v1/omamori/"+omamoriID+"/elements/"+textID, map[string]any{
			"type": models.ElementTypeStamp,
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.Len(t, prob.Errors, 1)
		require.Equal(t, "type", prob.Errors[0].Location)
	})

	t.Run("reorder swaps layers", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPut, "/v1/omamori/"+omamoriID+"/elements/order", map[string]any{
			"elementIds": []string{stampID, textID},
		})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp = env.doJSONRequest(t, http.MethodGet, "/v1/omamori/"+omamoriID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		detail := decodeBody[models.OmamoriDetail](t, resp)
		require.Len(t, detail.Elements, 3)
		require.Equal(t, models.ElementTypeBackground, detail.Elements[0].Type)
		require.Equal(t, stampID, detail.Elements[1].Id)
		require.Equal(t, textID, detail.Elements[2].Id)
	})

	t.Run("reorder mismatch leaves order alone", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPut, "/v1/omamori/"+omamoriID+"/elements/order", map[string]any{
			"elementIds": []string{stampID},
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.True(t, prob.HasCode("reorder_mismatch"))
	})

	t.Run("publish succeeds once the rules hold", func(t *testing.T) {
		colorID := "c-crimson"
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori", map[string]any{
			"title":   "throwaway", // separate draft keeps ids flowing for later asserts
			"colorId": colorID,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		om, err := env.repo.GetOmamoriByID(context.Background(), omamoriID)
		require.NoError(t, err)
		om.ColorID = &colorID
		require.NoError(t, env.repo.UpdateOmamori(context.Background(), *om))

		resp = env.doJSONRequest(t, http.MethodPost, "/v1/omamori/"+omamoriID+"/publish", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		summary := decodeBody[models.OmamoriSummary](t, resp)
		require.Equal(t, models.StatusPublished, summary.Status)
		require.NotNil(t, summary.PublishedAt)
	})

	t.Run("duplicate yields an independent draft", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori/"+omamoriID+"/duplicate", nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		dup := decodeBody[models.OmamoriDetail](t, resp)
		require.NotEqual(t, omamoriID, dup.Id)
		require.Equal(t, models.StatusDraft, dup.Status)
		require.Nil(t, dup.PublishedAt)
		require.Len(t, dup.Elements, 3)
		for i, el := range dup.Elements {
			require.NotEqual(t, "", el.Id, "element %d", i)
		}
	})

	t.Run("list shows pagination headers", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodGet, "/v1/omamori?page=1&perPage=2", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "3", resp.Header.Get("X-Total-Count"))
		require.Contains(t, resp.Header.Get("Link"), "rel=\"self\"")

		list := decodeBody[models.OmamoriListResponse](t, resp)
		require.Len(t, list.Omamoris, 2)
		require.NotNil(t, list.Links.Next)
	})

	t.Run("trash the original", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodDelete, "/v1/omamori/"+omamoriID, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp = env.doJSONRequest(t, http.MethodGet, "/v1/omamori/"+omamoriID, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.Equal(t, "Resource Not Found", prob.Title)
	})
}

func TestAuthBoundary(t *testing.T) {
	env := newIntegrationEnv(t)

	t.Run("missing bearer token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/omamori", nil)
		require.NoError(t, err)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("foreign user cannot modify", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/v1/omamori", map[string]any{"title": "mine"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		created := decodeBody[models.OmamoriSummary](t, resp)

		env.token = signedToken(t, "user-2")
		resp = env.doJSONRequest(t, http.MethodDelete, "/v1/omamori/"+created.Id, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		prob := decodeBody[problem.APIError](t, resp)
		require.True(t, prob.HasCode("forbidden"))
	})
}
