package service

import "errors"

// Классы ошибок ядра. Сервисы оборачивают их через %w с контекстом операции,
// транспортный слой отображает класс в HTTP-статус через errors.Is.
// Любая ошибка поднимается синхронно внутри активной транзакции и приводит
// к полному откату — частичное состояние никогда не сохраняется.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrStateViolation   = errors.New("state violation")
)
