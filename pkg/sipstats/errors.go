package sipstats

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument неверный аргумент Handle
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClientFactoryNotFound не задана фабрика клиентов аналитики
	ErrClientFactoryNotFound = errors.New("callstats client factory not found")
)

// ArgumentError ошибка конкретного аргумента Handle
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

func argError(name, reason string) error {
	return &ArgumentError{Name: name, Reason: reason}
}
