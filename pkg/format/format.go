package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// PayloadDecoder — коллаборатор §6: декодирует полезную нагрузку RTP
// в сэмплы PCM. Конкретные кодеки (G.711, Opus, ...) — вне области
// этой спецификации; ядро потребляет только этот интерфейс.
type PayloadDecoder interface {
	// Decode пишет декодированные сэмплы в out и возвращает их число.
	Decode(payload []byte, out []int16) (sampleCount int, err error)
	SampleSpec() SampleSpec
}

// DecoderFactory строит новый PayloadDecoder для формата; отдельный
// декодер на каждую сессию, т.к. многие кодеки держат внутреннее
// состояние (историю предсказания и т.п.).
type DecoderFactory func() PayloadDecoder

// Format описывает один payload type: его SampleSpec и фабрику
// декодера (spec §3 "Format (payload-type descriptor)").
type Format struct {
	PayloadType uint8
	Name        string
	SampleSpec  SampleSpec
	NewDecoder  DecoderFactory
}

// Map — реестр Format'ов, индексированный по RTP payload type.
// Заполняется либо программно через Register, либо разбором SDP
// `a=rtpmap` атрибутов через LoadSessionDescription — тем же типом
// sdp.SessionDescription, которым в софтфоне teacher-репозитория
// договариваются кодеки для SIP-звонка; здесь используется только
// получившаяся таблица payload type → SampleSpec, без какой-либо
// SIP-сигнализации.
type Map struct {
	formats map[uint8]*Format
}

// NewMap создаёт пустой реестр форматов.
func NewMap() *Map {
	return &Map{formats: make(map[uint8]*Format)}
}

// Register добавляет (или заменяет) Format для данного payload type.
func (m *Map) Register(f *Format) {
	m.formats[f.PayloadType] = f
}

// Format возвращает зарегистрированный Format либо nil, если payload
// type неизвестен (spec §4.12 "Create": неизвестный payload type
// оставляет Session invalid).
func (m *Map) Format(payloadType uint8) *Format {
	return m.formats[payloadType]
}

// LoadSessionDescription извлекает `a=rtpmap:<fmt> <name>/<rate>[/<channels>]`
// атрибуты из sd (на уровне сессии и каждого media-блока) и
// регистрирует по одному Format на каждый успешно разобранный
// rtpmap. Прочие атрибуты и неразборчивые значения rtpmap
// пропускаются без ошибки. Зарегистрированные так Format'ы имеют
// NewDecoder == nil и заменяют прежнюю запись с тем же payload type
// (в том числе с уже подключённым декодером) — вызывающий код обязан
// подключить NewDecoder отдельно, если хочет реально декодировать эту
// полезную нагрузку.
func (m *Map) LoadSessionDescription(sd *sdp.SessionDescription) error {
	if sd == nil {
		return fmt.Errorf("format: session description is nil")
	}

	attrs := append([]sdp.Attribute{}, sd.Attributes...)
	for _, md := range sd.MediaDescriptions {
		attrs = append(attrs, md.Attributes...)
	}

	for _, a := range attrs {
		if a.Key != "rtpmap" {
			continue
		}
		f, err := parseRTPMap(a.Value)
		if err != nil {
			continue
		}
		m.Register(f)
	}
	return nil
}

// parseRTPMap разбирает значение атрибута rtpmap вида
// "<payload type> <encoding name>/<clock rate>[/<encoding parameters>]".
func parseRTPMap(value string) (*Format, error) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("format: malformed rtpmap value %q", value)
	}

	pt, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("format: malformed rtpmap payload type %q: %w", fields[0], err)
	}

	parts := strings.Split(fields[1], "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("format: malformed rtpmap encoding %q", fields[1])
	}

	clockRate, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("format: malformed rtpmap clock rate %q: %w", parts[1], err)
	}

	channels := uint64(1)
	if len(parts) >= 3 {
		channels, err = strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("format: malformed rtpmap channel count %q: %w", parts[2], err)
		}
	}

	return &Format{
		PayloadType: uint8(pt),
		Name:        parts[0],
		SampleSpec: SampleSpec{
			SampleRate:  uint32(clockRate),
			ChannelMask: channelMaskForCount(int(channels)),
		},
	}, nil
}

// channelMaskForCount возвращает канонический младшебитовый набор
// каналов для их количества (моно — бит 0, стерео — биты 0 и 1, ...).
func channelMaskForCount(n int) uint32 {
	if n <= 0 || n > 32 {
		return 1
	}
	return uint32(1)<<uint(n) - 1
}
