package utils

import (
	"fmt"
	"regexp"
	"strings"
	"vesselwatch/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

var trackerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

func NewValidationService() *ValidationService {
	v := validator.New()
	registerCustomValidations(v)
	return &ValidationService{validator: v}
}

// RegisterBindingValidations installs the custom tags on gin's validator so
// that binding:"report_status" and friends work in request structs.
func RegisterBindingValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		logrus.Warn("Gin validator engine is not go-playground/validator, custom tags unavailable")
		return
	}
	registerCustomValidations(v)
}

func registerCustomValidations(v *validator.Validate) {
	v.RegisterValidation("tracker_id", validateTrackerID)
	v.RegisterValidation("report_status", validateReportStatus)
	v.RegisterValidation("connectivity", validateConnectivity)
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	err := vs.validator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error()}}
	}
	return FormatValidationErrors(fieldErrs)
}

// FormatValidationErrors converts validator errors into response entries
func FormatValidationErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: errorMessage(fe),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "latitude":
		return "Latitude must be between -90 and 90"
	case "longitude":
		return "Longitude must be between -180 and 180"
	case "tracker_id":
		return "Invalid tracker ID"
	case "report_status":
		return fmt.Sprintf("Report status must be one of: %s", reportStatusList())
	case "connectivity":
		return "Connectivity must be online, offline or reconnecting"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateTrackerID(fl validator.FieldLevel) bool {
	return trackerIDPattern.MatchString(fl.Field().String())
}

func validateReportStatus(fl validator.FieldLevel) bool {
	return models.ReportStatus(fl.Field().String()).Valid()
}

func validateConnectivity(fl validator.FieldLevel) bool {
	return models.ConnectivityStatus(fl.Field().String()).Valid()
}

func reportStatusList() string {
	names := make([]string, len(models.ReportStatuses))
	for i, s := range models.ReportStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
