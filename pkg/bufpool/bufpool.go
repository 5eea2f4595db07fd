// Package bufpool содержит ref-counted буферы и фабрики буферов,
// используемые пакетным и фреймовым доменами конвейера приёмника.
//
// Буферы возвращаются в пул при обнулении счётчика ссылок, что
// избавляет пакетный и фреймовый пути от аллокаций на горячем пути.
// В отладочных сборках poison заполняет освобождённый буфер сигнальным
// паттерном, чтобы use-after-release всплывал как заметное искажение
// данных, а не тихая порча памяти.
package bufpool

import "sync"

// poisonByte — сигнальное значение, которым poison заполняет буфер
// перед возвратом его в пул.
const poisonByte = 0xA5

// Buffer — ref-counted срез памяти фиксированного размера, выделенный
// из Pool. Buffer не потокобезопасен сам по себе: ссылка передаётся
// вдоль цепочки чтения одним владельцем за раз, а Ref/Release вызываются
// только при передаче владения между стадиями (например, LatencyMonitor
// удерживает не-владеющую ссылку и не должен вызывать Release).
type Buffer[T any] struct {
	pool *Pool[T]
	data []T
	refs int32
	mu   sync.Mutex
}

// Bytes возвращает содержимое буфера. Срез действителен, пока
// счётчик ссылок положителен.
func (b *Buffer[T]) Bytes() []T {
	return b.data
}

// Len возвращает длину буфера в элементах.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Ref увеличивает счётчик ссылок; вызывается всякий раз, когда стадия
// сохраняет буфер сверх времени жизни текущего read().
func (b *Buffer[T]) Ref() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

// Release уменьшает счётчик ссылок; при достижении нуля буфер
// возвращается в пул (и, если включён poisoning, затирается).
func (b *Buffer[T]) Release() {
	b.mu.Lock()
	b.refs--
	remaining := b.refs
	b.mu.Unlock()

	if remaining > 0 {
		return
	}
	if remaining < 0 {
		panic("bufpool: negative refcount, double release")
	}

	if b.pool.poisoning {
		poison(b.data)
	}
	b.pool.put(b)
}

func poison[T any](data []T) {
	// data — []byte в единственном используемом в этом модуле
	// инстанцировании (Buffer[byte]); для прочих T Poison — не-операция,
	// т.к. нет универсального «сигнального» значения.
	if bs, ok := any(data).([]byte); ok {
		for i := range bs {
			bs[i] = poisonByte
		}
	}
}

// Pool — фабрика буферов фиксированного набора размеров, разделяемая
// всеми сессиями приёмника (спецификация §5: "два пула буферов ...
// каждый разделяется всеми сессиями"). Pool потокобезопасен: сетевой
// поток ввода может аллоцировать пакетные буферы одновременно с тем,
// как поток драйвера сессии читает и освобождает буферы фреймов.
type Pool[T any] struct {
	mu        sync.Mutex
	free      map[int][]*Buffer[T]
	poisoning bool
}

// NewPool создаёт пустой пул. poisoning включает заполнение
// освобождённых буферов сигнальным паттерном (только имеет эффект для
// Pool[byte]).
func NewPool[T any](poisoning bool) *Pool[T] {
	return &Pool[T]{
		free:      make(map[int][]*Buffer[T]),
		poisoning: poisoning,
	}
}

// NewBuffer возвращает буфер размера size, переиспользуя ранее
// освобождённый буфер того же размера, если такой есть в пуле.
func (p *Pool[T]) NewBuffer(size int) *Buffer[T] {
	p.mu.Lock()
	bucket := p.free[size]
	var buf *Buffer[T]
	if n := len(bucket); n > 0 {
		buf = bucket[n-1]
		p.free[size] = bucket[:n-1]
	}
	p.mu.Unlock()

	if buf != nil {
		buf.refs = 1
		clear(buf.data)
		return buf
	}

	return &Buffer[T]{
		pool: p,
		data: make([]T, size),
		refs: 1,
	}
}

func (p *Pool[T]) put(buf *Buffer[T]) {
	p.mu.Lock()
	size := len(buf.data)
	p.free[size] = append(p.free[size], buf)
	p.mu.Unlock()
}

// FreeCount returns the number of released buffers of the given size
// currently sitting in the free list, for pool utilization telemetry
// and for tests asserting that every checked-out buffer eventually
// comes back.
func (p *Pool[T]) FreeCount(size int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[size])
}
