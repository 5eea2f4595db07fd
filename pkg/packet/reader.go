package packet

// Reader — стадия пакетного домена, обслуживающая read() (spec §9:
// "переизложить как размеченную сумму или небольшой trait/interface").
// Возврат (nil, nil) означает "сейчас нечего отдать" (например,
// DelayedReader в состоянии Filling); возврат ошибки — терминальный
// отказ стадии (spec §7 "stream-fatal"): вызывающий не должен
// продолжать вызывать Read.
type Reader interface {
	Read() (*Packet, error)
}

// Writer — сторона записи пакетного домена; единственный push-путь
// конвейера, используемый сетевым приёмом для доставки пакетов в
// Router (spec §2, §5).
type Writer interface {
	Write(p *Packet) error
}

// ReaderFunc позволяет использовать обычную функцию как Reader.
type ReaderFunc func() (*Packet, error)

func (f ReaderFunc) Read() (*Packet, error) { return f() }
