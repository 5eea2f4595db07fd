package packet

import "fmt"

// route — одна запись таблицы маршрутизации Router.
type route struct {
	mask   Flags
	writer Writer
}

// Router демультиплексирует входящие пакеты в сессии/направления по
// битовой маске возможностей (spec §4.1). AddRoute вызывается при
// конструировании сессии. Write не синхронизирован: ни счётчик
// dropped, ни очереди, в которые он пишет, не защищены блокировкой,
// поэтому Write нельзя вызывать одновременно с чтением из этих
// очередей — передача пакетов из сетевого потока в контекст драйвера
// сессии лежит на вызывающем коде.
type Router struct {
	routes []route
	// dropped считает пакеты, не совпавшие ни с одним маршрутом.
	dropped uint64
}

// NewRouter создаёт пустой Router без маршрутов.
func NewRouter() *Router {
	return &Router{}
}

// AddRoute регистрирует writer для заданной битовой маски. Ошибка
// возвращается только если маска mask уже зарегистрирована — Router
// не пытается угадать намерение автора при дублировании.
func (r *Router) AddRoute(writer Writer, mask Flags) error {
	for _, rt := range r.routes {
		if rt.mask == mask {
			return fmt.Errorf("packet: маршрут с маской %#x уже зарегистрирован", uint32(mask))
		}
	}
	r.routes = append(r.routes, route{mask: mask, writer: writer})
	return nil
}

// Write отправляет пакет первому маршруту, чья маска совпадает с
// флагами пакета. Пакет может совпасть не более чем с одним маршрутом,
// т.к. маски маршрутов должны быть взаимоисключающими по конструкции
// вызывающего кода; при отсутствии совпадений пакет отбрасывается и
// учитывается в Dropped().
func (r *Router) Write(p *Packet) error {
	for _, rt := range r.routes {
		if p.Flags.Has(rt.mask) {
			return rt.writer.Write(p)
		}
	}
	r.dropped++
	p.Release()
	return nil
}

// Dropped возвращает количество пакетов, не совпавших ни с одним
// маршрутом.
func (r *Router) Dropped() uint64 {
	return r.dropped
}
