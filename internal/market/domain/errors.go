package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrForbidden              = errors.New("user not authorized to perform this action")
	ErrUnauthenticated        = errors.New("no authenticated identity")
	ErrConfirmationRequired   = errors.New("destructive action requires confirmation")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrNoContact              = errors.New("seller has no contact handle")
	ErrInvalidInitData        = errors.New("invalid telegram init data")
)

// Field names reported by ValidationError.
const (
	FieldTitle     = "title"
	FieldPrice     = "price"
	FieldCity      = "city"
	FieldPhotos    = "photos"
	FieldRarity    = "rarity"
	FieldCondition = "condition"
	FieldStatus    = "status"
)

// User-facing messages.
const (
	MsgTitleRequired      = "Введите название модели"
	MsgInvalidPrice       = "Введите корректную цену"
	MsgCityRequired       = "Введите город"
	MsgPhotoRequired      = "Добавьте хотя бы одну фотографию"
	MsgUnknownRarity      = "Неизвестная категория редкости"
	MsgUnknownCondition   = "Неизвестное состояние модели"
	MsgUnknownStatus      = "Неизвестный статус объявления"
	MsgUnsupportedType    = "Только JPG, PNG и WebP файлы"
	MsgFileTooLarge       = "Файл слишком большой (макс. 5MB)"
	MsgTooManyPhotos      = "Максимум 3 фотографии"
	MsgNoContact          = "Продавец не указал контакты"
	MsgConfirmRequired    = "Подтвердите действие"
	MsgStorageUnavailable = "Хранилище недоступно"
	MsgProductNotFound    = "Объявление не найдено"
	MsgForbidden          = "Недостаточно прав"
	MsgSignInRequired     = "Войдите, чтобы продолжить"
	MsgInvalidInitData    = "Не удалось подтвердить вход через Telegram"
)

// ValidationError names the first invalid field of a publish or edit.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RejectReason classifies why Photo Intake refused a file.
type RejectReason string

const (
	RejectType     RejectReason = "type"
	RejectSize     RejectReason = "size"
	RejectCapacity RejectReason = "capacity"
)

// UploadRejectedError is reported per offending file.
type UploadRejectedError struct {
	File   string
	Reason RejectReason
}

func (e *UploadRejectedError) Error() string {
	switch e.Reason {
	case RejectType:
		return MsgUnsupportedType
	case RejectSize:
		return MsgFileTooLarge
	default:
		return MsgTooManyPhotos
	}
}

// UserMessage converts any core error into a single-line notification.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ue *UploadRejectedError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	switch {
	case errors.Is(err, ErrNoContact):
		return MsgNoContact
	case errors.Is(err, ErrConfirmationRequired):
		return MsgConfirmRequired
	case errors.Is(err, ErrPersistenceUnavailable):
		return MsgStorageUnavailable
	case errors.Is(err, ErrProductNotFound):
		return MsgProductNotFound
	case errors.Is(err, ErrForbidden):
		return MsgForbidden
	case errors.Is(err, ErrUnauthenticated):
		return MsgSignInRequired
	case errors.Is(err, ErrInvalidInitData):
		return MsgInvalidInitData
	}
	return fmt.Sprintf("Ошибка: %v", err)
}
