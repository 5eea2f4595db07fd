package packet

import "github.com/29minhanh/roc-toolkit/pkg/format"

// ValidatorConfig — конфигурация RTP Validator'а (spec §4.3, §6
// "rtp_validator").
type ValidatorConfig struct {
	MaxSNJump uint16
	MaxTSJump uint32
}

// Validator — стейтфул-проверка потока пакетов, читаемых от upstream.
// При первом нарушении переходит в терминально-отказавшее состояние
// и на все последующие Read возвращает ту же ошибку без чтения из
// upstream (spec §4.3).
type Validator struct {
	upstream Reader
	cfg      ValidatorConfig
	spec     format.SampleSpec
	pt       uint8

	initialized bool
	lastSSRC    uint32
	lastSeq     uint16
	lastTS      uint32

	failed error
}

// NewValidator создаёт Validator, обёртывающий upstream. pt — payload
// type, ожидаемый на протяжении всей жизни сессии (spec §3
// "session's format is immutable for its lifetime").
func NewValidator(upstream Reader, cfg ValidatorConfig, spec format.SampleSpec, pt uint8) *Validator {
	return &Validator{upstream: upstream, cfg: cfg, spec: spec, pt: pt}
}

// Read проверяет следующий пакет от upstream. Если Validator уже
// терминально отказал, возвращает ту же ошибку немедленно.
func (v *Validator) Read() (*Packet, error) {
	if v.failed != nil {
		return nil, v.failed
	}

	p, err := v.upstream.Read()
	if err != nil {
		v.failed = err
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	if uint8(p.RTP.PayloadType) != v.pt {
		v.failed = ErrBadPayloadType
		p.Release()
		return nil, v.failed
	}

	if !v.initialized {
		v.initialized = true
		v.lastSSRC = p.RTP.SSRC
		v.lastSeq = p.SeqNum()
		v.lastTS = p.Timestamp()
		return p, nil
	}

	if p.RTP.SSRC != v.lastSSRC {
		v.failed = ErrBadSource
		p.Release()
		return nil, v.failed
	}

	if v.cfg.MaxSNJump != 0 {
		jump := SeqDiff(p.SeqNum(), v.lastSeq)
		if jump < 0 {
			jump = -jump
		}
		if uint16(jump) > v.cfg.MaxSNJump {
			v.failed = ErrSeqJump
			p.Release()
			return nil, v.failed
		}
	}

	if v.cfg.MaxTSJump != 0 {
		tsJump := int64(p.Timestamp()) - int64(v.lastTS)
		if tsJump < 0 {
			tsJump = -tsJump
		}
		if uint32(tsJump) > v.cfg.MaxTSJump {
			v.failed = ErrTimestampJump
			p.Release()
			return nil, v.failed
		}
	}

	v.lastSeq = p.SeqNum()
	v.lastTS = p.Timestamp()
	return p, nil
}

// Failed сообщает, терминально ли отказал Validator, и если да —
// возвращает причину.
func (v *Validator) Failed() error {
	return v.failed
}
