package consumer

import "errors"

var (
	// ErrDispatch — провайдер не смог отправить сообщение.
	ErrDispatch = errors.New("message dispatch failed")

	// ErrMessageNotFound — сообщения нет в очереди.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotFailed — reprocess возможен только для failed сообщений.
	ErrNotFailed = errors.New("message is not failed")
)
