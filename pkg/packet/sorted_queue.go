package packet

// SortedQueue — очередь пакетов, хранящихся в порядке возрастания RTP
// sequence number по модульному сравнению (spec §4.2). Capacity == 0
// означает неограниченную очередь.
//
// SortedQueue реализует и Writer (принимает пакеты от Router), и
// Reader (отдаёт их дальше по цепочке в порядке возрастания
// последовательности).
type SortedQueue struct {
	capacity int
	packets  []*Packet

	// horizon — sequence number последнего пакета, покинувшего очередь
	// (прочитанного или вытесненного переполнением). Пакеты, чья
	// модульная дистанция от horizon не строго положительна, уже были
	// либо доставлены, либо признаны устаревшими — это и есть
	// "модульная дистанция от текущей головы", проверяемая через
	// знаковую 16-битную арифметику SeqDiff (spec §4.2 wrap semantics):
	// диапазон SeqDiff по построению не превышает половины пространства
	// sequence number, поэтому "превышает половину" эквивалентно
	// "не строго впереди horizon".
	hasHorizon bool
	horizon    uint16

	dropped uint64
}

// NewSortedQueue создаёт очередь с заданной ёмкостью (0 — без
// ограничения).
func NewSortedQueue(capacity int) *SortedQueue {
	return &SortedQueue{capacity: capacity}
}

// Write вставляет пакет в позицию, поддерживающую возрастающий
// порядок sequence number. Пакет, дублирующий уже доставленный или
// уже буферизованный sequence number, отбрасывается; при переполнении
// ограниченной очереди отбрасывается самый старый буферизованный
// пакет.
func (q *SortedQueue) Write(p *Packet) error {
	if q.hasHorizon {
		if SeqDiff(p.SeqNum(), q.horizon) <= 0 {
			q.dropped++
			p.Release()
			return nil
		}
	}

	insertAt := len(q.packets)
	for i, existing := range q.packets {
		d := SeqDiff(p.SeqNum(), existing.SeqNum())
		if d == 0 {
			q.dropped++
			p.Release()
			return nil
		}
		if d < 0 {
			insertAt = i
			break
		}
	}

	q.packets = append(q.packets, nil)
	copy(q.packets[insertAt+1:], q.packets[insertAt:])
	q.packets[insertAt] = p

	if q.capacity > 0 && len(q.packets) > q.capacity {
		oldest := q.packets[0]
		q.packets = q.packets[1:]
		q.advanceHorizon(oldest.SeqNum())
		q.dropped++
		oldest.Release()
	}

	return nil
}

// Read извлекает пакет с наименьшим sequence number, либо nil, если
// очередь пуста.
func (q *SortedQueue) Read() (*Packet, error) {
	if len(q.packets) == 0 {
		return nil, nil
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	q.advanceHorizon(p.SeqNum())
	return p, nil
}

func (q *SortedQueue) advanceHorizon(seq uint16) {
	if !q.hasHorizon || SeqDiff(seq, q.horizon) > 0 {
		q.hasHorizon = true
		q.horizon = seq
	}
}

// Size возвращает текущее число буферизованных пакетов.
func (q *SortedQueue) Size() int {
	return len(q.packets)
}

// Dropped возвращает число отброшенных пакетов (дубликаты,
// устаревшие пакеты и вытеснение при переполнении).
func (q *SortedQueue) Dropped() uint64 {
	return q.dropped
}

// HeadTimestamp возвращает RTP timestamp головного пакета и true,
// либо (0, false), если очередь пуста.
func (q *SortedQueue) HeadTimestamp() (uint32, bool) {
	if len(q.packets) == 0 {
		return 0, false
	}
	return q.packets[0].Timestamp(), true
}

// TailTimestamp возвращает RTP timestamp последнего (самого нового по
// sequence number) пакета в очереди и true, либо (0, false), если
// очередь пуста.
func (q *SortedQueue) TailTimestamp() (uint32, bool) {
	if len(q.packets) == 0 {
		return 0, false
	}
	return q.packets[len(q.packets)-1].Timestamp(), true
}
