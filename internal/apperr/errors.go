// Package apperr описывает классы ошибок приложения и их отображение в HTTP статусы
package apperr

import (
	"errors"
	"net/http"
)

// Kind класс ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error ошибка приложения с классом, сообщением для клиента и исходной причиной
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation ошибка входных данных; fields содержит сообщения по полям
func Validation(message string, fields map[string]string) *Error {
	e := &Error{Kind: KindValidation, Message: message}
	if len(fields) > 0 {
		e.Details = fields
	}
	return e
}

// Unauthenticated отсутствует или недействительна сессия
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Forbidden сессия действительна, но прав недостаточно
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound запрошенная сущность отсутствует
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict нарушение уникальности или ссылочной целостности
func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Internal непредвиденная ошибка хранилища или окружения
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf возвращает класс ошибки; ошибки вне таксономии считаются внутренними
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is проверяет класс ошибки
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus возвращает HTTP статус для класса ошибки.
// Conflict отдается как 400.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Envelope тело ответа с ошибкой
type Envelope struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// ToEnvelope формирует клиентский ответ; сообщения внутренних ошибок скрываются
func ToEnvelope(err error) (int, Envelope) {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind == KindInternal {
		return http.StatusInternalServerError, Envelope{Error: "Внутренняя ошибка сервера"}
	}
	return HTTPStatus(appErr.Kind), Envelope{Error: appErr.Message, Details: appErr.Details}
}
