package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/omamori-atelier/omamori-api/pkg/jobs"
	api "github.com/omamori-atelier/omamori-api/pkg/omamori"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/database"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/handler"
	problem "github.com/omamori-atelier/omamori-api/pkg/omamori/helpers/problem"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/repositories"
	"github.com/omamori-atelier/omamori-api/pkg/omamori/services"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

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
		// StructField -> json tag
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL (e.g. https://…)"
	default:
		return fe.Error()
	}
}

func init() {
	tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
		// 1) Bind/validate errors → 400 with the offending params
		var be tonic.BindError
		if errors.As(err, &be) || isValidationErr(err) {
			invalids := invalidParamsFromBinding(err, models.CreateOmamoriInput{})
			apiErr := problem.NewBadRequest("body", "Invalid input", invalids...)
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 2) Typed APIError → pass-through
		if apiErr, ok := err.(problem.APIError); ok {
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 3) Everything else → 500
		internal := problem.NewInternalServerError(err.Error())
		c.Header("Content-Type", "application/problem+json")
		return internal.Status, internal
	})
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func main() {
	_ = godotenv.Load()

	version := os.Getenv("API_VERSION")
	if version == "" {
		version = "1.0.0"
	}

	dbcon := "postgres://" +
		os.Getenv("DB_USERNAME") + ":" +
		os.Getenv("DB_PASSWORD") + "@" +
		os.Getenv("DB_HOSTNAME") + "/" +
		os.Getenv("DB_DBNAME") + "?search_path=" +
		os.Getenv("DB_SCHEMA")
	db, err := database.Connect(dbcon)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	repo := repositories.NewOmamoriRepository(db)
	omamoriService := services.NewOmamoriService(repo)
	elementService := services.NewElementService(repo)
	lifecycleService := services.NewLifecycleService(repo)
	duplicateService := services.NewDuplicateService(repo)
	controller := handler.NewOmamoriController(omamoriService, elementService, lifecycleService, duplicateService)
	jobs.ScheduleDailyPurge(context.Background(), omamoriService)

	// Start server
	router := api.NewRouter(version, controller)

	log.Println("Server is running on port 1337")
	log.Fatal(http.ListenAndServe(":1337", router))
}
