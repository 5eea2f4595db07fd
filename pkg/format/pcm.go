package format

import "encoding/binary"

// pcmDecoder — референсный PayloadDecoder для linear PCM (L16),
// big-endian, интерливинг по каналам как того требует RFC 3551.
// Конкретные кодеки — внешний коллаборатор по spec §1/§6; эта
// реализация существует только как тестовый/референсный декодер,
// подключаемый через DecoderFactory тем же способом, каким подключался
// бы любой другой PayloadDecoder — она не претендует на замену
// вынесенных за рамки спецификации кодеков файлов/сигналов.
type pcmDecoder struct {
	spec SampleSpec
}

// NewPCMDecoderFactory возвращает DecoderFactory для linear PCM с
// данной SampleSpec.
func NewPCMDecoderFactory(spec SampleSpec) DecoderFactory {
	return func() PayloadDecoder {
		return &pcmDecoder{spec: spec}
	}
}

func (d *pcmDecoder) SampleSpec() SampleSpec {
	return d.spec
}

func (d *pcmDecoder) Decode(payload []byte, out []int16) (int, error) {
	n := len(payload) / 2
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = int16(binary.BigEndian.Uint16(payload[i*2 : i*2+2]))
	}
	return n, nil
}
