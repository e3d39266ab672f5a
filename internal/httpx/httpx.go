// Package httpx общие помощники gin обработчиков: разбор тела запроса,
// параметров пути и единый формат ответа с ошибкой
package httpx

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func init() {
	// В details ошибки валидации поля называются так же, как в JSON
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	}
}

// Error отдает ошибку в формате {error, details?} и прерывает цепочку обработчиков
func Error(c *gin.Context, err error) {
	status, body := apperr.ToEnvelope(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// BindJSON разбирает и валидирует тело запроса
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return translate(err)
	}
	return nil
}

// BindQuery разбирает и валидирует параметры строки запроса
func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		return translate(err)
	}
	return nil
}

// ParamUUID читает UUID из параметра пути
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("Неверный идентификатор", map[string]string{name: "должен быть UUID"})
	}
	return id, nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return apperr.Validation("Ошибка валидации", fields)
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("Пустое тело запроса", nil)
	}
	return apperr.Validation("Неверный формат данных в запросе", nil)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "обязательное поле"
	case "email":
		return "некорректный email"
	case "url":
		return "некорректный URL"
	case "uuid":
		return "должен быть UUID"
	case "min":
		return fmt.Sprintf("минимальная длина %s", fe.Param())
	case "max":
		return fmt.Sprintf("максимальная длина %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("допустимые значения: %s", fe.Param())
	default:
		return fmt.Sprintf("не прошло проверку %s", fe.Tag())
	}
}
