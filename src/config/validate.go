package config

import (
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/transport"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validation tags
	validate.RegisterValidation("wsurl", validateWebSocketURL)
	validate.RegisterValidation("icepolicy", validateICEPolicy)
	validate.RegisterValidation("readypolicy", validateReadyPolicy)
}

// Validate checks every option against its validate tag.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// validateWebSocketURL accepts ws:// and wss:// URLs with a host.
func validateWebSocketURL(fl validator.FieldLevel) bool {
	parsedURL, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}

	if parsedURL.Scheme != "ws" && parsedURL.Scheme != "wss" {
		return false
	}

	return parsedURL.Host != ""
}

func validateICEPolicy(fl validator.FieldLevel) bool {
	_, err := ice.ParsePolicy(fl.Field().String())
	return err == nil
}

func validateReadyPolicy(fl validator.FieldLevel) bool {
	_, err := transport.ParseReadyPolicy(fl.Field().String())
	return err == nil
}
