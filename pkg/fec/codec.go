// Package fec содержит FEC Reader (spec §4.6) и коллаборатор FECCodec
// (spec §6). Конкретные кодеки (Reed–Solomon M=8, LDPC-Staircase) вне
// области этой спецификации — ядро оперирует только интерфейсом Codec;
// в этом пакете есть лишь справочные реализации (NullCodec, XORCodec)
// для конструирования и тестирования Reader'а без реального кодека.
package fec

import "errors"

// ErrCodecUnavailable возвращается NullCodec.NewBlock — соответствует
// spec §4.6 "codec init failure → stage enters invalid state at
// construction".
var ErrCodecUnavailable = errors.New("fec: codec unavailable")

// Codec — коллаборатор §6: строит новый Block для очередного
// source-блока с фиксированными размерами (k source, m repair).
type Codec interface {
	NewBlock(k, m int) (Block, error)
}

// Block накапливает символы одного FEC-блока и пытается
// восстановить недостающие source-символы.
type Block interface {
	// AddSymbol регистрирует символ по его позиции в блоке: индексы
	// [0,k) — source-символы, [k,k+m) — repair-символы.
	AddSymbol(idx int, data []byte) error
	// TryRepair пытается восстановить отсутствующие source-символы.
	// Возвращает карту "индекс source-символа → восстановленные байты"
	// для всех символов, которые удалось восстановить.
	TryRepair() (map[int][]byte, error)
}

// NullCodec — кодек, который никогда не инициализируется успешно;
// используется, когда согласованная FEC-схема на самом деле не
// поддерживается сборкой (например, RS_M8 запрошен, но кодек не
// слинкован). Конструирование FEC Reader с NullCodec оставляет Reader
// невалидным (spec §4.6 "codec init failure").
type NullCodec struct{}

func (NullCodec) NewBlock(int, int) (Block, error) {
	return nil, ErrCodecUnavailable
}
