package handler

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns validator failures into one CodeValidation error
// naming every bad field.
func validationError(err error) error {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, formatFieldError(fe))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "latitude":
		return fmt.Sprintf("%s must be a latitude between -90 and 90", fe.Field())
	case "longitude":
		return fmt.Sprintf("%s must be a longitude between -180 and 180", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// Coordinates is embedded by every request that carries a position. Missing
// coordinates are reported as location_required, not as a field error.
type Coordinates struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Address   string   `json:"address,omitempty" validate:"max=255"`
}

func (c *Coordinates) normalize() {
	c.Address = strings.TrimSpace(c.Address)
}

func (c *Coordinates) require() error {
	if c.Latitude == nil || c.Longitude == nil {
		return dErrors.New(dErrors.CodeLocationRequired, "latitude and longitude are required")
	}
	return nil
}

func (c *Coordinates) location() *models.Location {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &models.Location{Latitude: *c.Latitude, Longitude: *c.Longitude, Address: c.Address}
}

// CheckInRequest is the body of POST /attendance/check-in.
type CheckInRequest struct {
	Coordinates
	WorkLocation string `json:"work_location" validate:"required"`
	Notes        string `json:"notes,omitempty" validate:"max=1000"`
	LateReason   string `json:"late_reason,omitempty" validate:"max=1000"`

	workLocation id.WorkLocation
}

func (r *CheckInRequest) Normalize() {
	r.Coordinates.normalize()
	r.WorkLocation = strings.TrimSpace(r.WorkLocation)
	r.Notes = strings.TrimSpace(r.Notes)
	r.LateReason = strings.TrimSpace(r.LateReason)
}

func (r *CheckInRequest) Validate() error {
	if err := r.require(); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	wl, err := id.ParseWorkLocation(r.WorkLocation)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "work_location must be PRIMARY_SITE or FIELD_SITE")
	}
	r.workLocation = wl
	return nil
}

// CheckOutRequest is the body of POST /attendance/check-out.
type CheckOutRequest struct {
	Coordinates
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

func (r *CheckOutRequest) Normalize() {
	r.Coordinates.normalize()
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *CheckOutRequest) Validate() error {
	if err := r.require(); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// RecordLocationRequest is the body of POST /attendance/location. It is
// decoded leniently: invalid samples are dropped by the service.
type RecordLocationRequest struct {
	Coordinates
	SessionID  string     `json:"session_id,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}
