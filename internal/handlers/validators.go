package handlers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"cellarhub/server/internal/security"
)

var registerOnce sync.Once

// registerValidators adds the custom binding rules to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("sharetoken", func(fl validator.FieldLevel) bool {
			return security.ValidShareToken(fl.Field().String())
		})
	})
}
