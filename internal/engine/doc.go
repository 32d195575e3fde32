// Package engine содержит чистые функции движка автоматизаций.
//
// Включает:
//   - template.go  — подстановка {{dotted.path}} в строки и конфиги шагов
//   - condition.go — вычисление условий триггеров и ветвлений
//   - validate.go  — проверка определения workflow при сохранении
//
// Пакет не обращается к хранилищу и не выполняет I/O:
// executor и dispatcher передают сюда уже собранный контекст.
package engine
