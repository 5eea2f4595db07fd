package bufpool

// Allocator — коллаборатор §6: используется для RAII-подобного
// управления временем жизни объектов стадий, чьё выделение память
// сама спецификация не определяет (конкретные аллокаторы — забота
// хост-приложения, а не ядра конвейера).
type Allocator interface {
	Alloc(size int) []byte
	Free(ptr []byte)
}

// heapAllocator — реализация Allocator по умолчанию поверх обычного
// рантайм-аллокатора Go. Используется, когда хост не предоставляет
// собственный Allocator (например, арену или пул фиксированных
// слэбов), что для ядра конвейера — не входящая в его обязанности
// деталь хоста.
type heapAllocator struct{}

// DefaultAllocator возвращает Allocator, делегирующий обычному
// рантайм-аллокатору Go.
func DefaultAllocator() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Alloc(size int) []byte {
	return make([]byte, size)
}

func (heapAllocator) Free([]byte) {
	// Рантайм Go не имеет явного free; сборка мусора освобождает
	// память сама, когда последняя ссылка снята.
}
