package feed

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/validate"
)

var (
	// ErrInvalidInput is returned before any repository call when a request
	// is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRepositoryUnavailable wraps dependency failures. RankFeed absorbs
	// it by degrading; the write operations return it.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

var (
	validatorInstance *validator.Validate
	validatorOnce     sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New(validator.WithRequiredStructEnabled())
		_ = validatorInstance.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
			_, err := validate.ID(fl.Field().String())
			return err == nil
		})
	})
	return validatorInstance
}

// validateStruct runs the struct tags and folds every field error into one
// ErrInvalidInput.
func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "entityid":
		return field + " contains invalid characters"
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// RankRequest asks for one page of a user's feed.
type RankRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128,entityid"`
	CityID   string `json:"city_id" validate:"required,max=128,entityid"`
	PageSize int    `json:"page_size" validate:"gte=0"`
	Cursor   string `json:"cursor,omitempty" validate:"max=256"`

	// Center and RadiusMeters request the nearby result set.
	Center       *geo.Point `json:"center,omitempty"`
	RadiusMeters float64    `json:"radius_meters,omitempty" validate:"gte=0,lte=100000"`

	// Companion overrides the user's stored companion preference.
	Companion string `json:"companion,omitempty" validate:"omitempty,oneof=solo date friends family"`
}

// FeedbackRequest records MORE, LESS or HIDE on an item.
type FeedbackRequest struct {
	UserID string `json:"user_id" validate:"required,max=128,entityid"`
	ItemID string `json:"item_id" validate:"required,max=128,entityid"`
	Type   string `json:"type" validate:"required,oneof=MORE LESS HIDE more less hide"`
}

// ViewRequest records that an item was shown.
type ViewRequest struct {
	UserID string `json:"user_id" validate:"required,max=128,entityid"`
	ItemID string `json:"item_id" validate:"required,max=128,entityid"`

	// Interacted marks the view as engaged, as when it accompanies a save
	// or a rating.
	Interacted bool `json:"interacted"`
}

// InteractionRequest sets a user's status, rating or note on an item.
type InteractionRequest struct {
	UserID string `json:"user_id" validate:"required,max=128,entityid"`
	ItemID string `json:"item_id" validate:"required,max=128,entityid"`
	Status string `json:"status" validate:"omitempty,oneof=WANT SAVED DONE PASS NONE want saved done pass none"`
	Rating *int   `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Note   string `json:"note,omitempty" validate:"max=1000"`
}
