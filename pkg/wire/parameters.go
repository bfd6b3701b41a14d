package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxParameters caps the declared parameter count of a single message.
const MaxParameters = 256

// ParamStyle selects how parameter values are laid out on the wire.
type ParamStyle uint8

const (
	// ParamsBytes encodes every value as a length-prefixed byte string.
	ParamsBytes ParamStyle = iota
	// ParamsParity encodes values of even keys as a bare varint and values
	// of odd keys as a length-prefixed byte string.
	ParamsParity
)

func (s ParamStyle) String() string {
	if s == ParamsParity {
		return "parity"
	}
	return "bytes"
}

// Parameters is an ordered mapping from 62-bit keys to byte values. Integer
// values are held as 8-byte big-endian strings. The zero value is empty and
// ready to use.
type Parameters struct {
	keys   []uint64
	values map[uint64][]byte
}

// Set stores value under key. Re-setting a key keeps its original position.
func (p *Parameters) Set(key uint64, value []byte) {
	if p.values == nil {
		p.values = make(map[uint64][]byte)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// SetUint stores v as an 8-byte big-endian value.
func (p *Parameters) SetUint(key uint64, v uint64) {
	p.Set(key, binary.BigEndian.AppendUint64(nil, v))
}

func (p *Parameters) Get(key uint64) ([]byte, bool) {
	if p == nil || p.values == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Uint interprets the value under key as a big-endian integer of at most 8
// bytes.
func (p *Parameters) Uint(key uint64) (uint64, bool) {
	v, ok := p.Get(key)
	if !ok || len(v) > 8 {
		return 0, false
	}
	return beUint(v), true
}

func (p *Parameters) Delete(key uint64) {
	if p == nil || p.values == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Parameters) Keys() []uint64 {
	if p == nil {
		return nil
	}
	return append([]uint64(nil), p.keys...)
}

// Append encodes the parameter count and entries.
func (p *Parameters) Append(b []byte, style ParamStyle) ([]byte, error) {
	b = AppendVarint(b, uint64(p.Len()))
	if p == nil {
		return b, nil
	}
	for _, key := range p.keys {
		if key > MaxVarint {
			return nil, fmt.Errorf("%w: parameter key %d", ErrVarintOverflow, key)
		}
		value := p.values[key]
		b = AppendVarint(b, key)

		if style == ParamsParity && key%2 == 0 {
			if len(value) > 8 {
				return nil, fmt.Errorf("%w: key %d has %d bytes", ErrParameterNotInteger, key, len(value))
			}
			v := beUint(value)
			if v > MaxVarint {
				return nil, fmt.Errorf("%w: parameter %d value %d", ErrVarintOverflow, key, v)
			}
			b = AppendVarint(b, v)
			continue
		}
		b = AppendBytes(b, value)
	}
	return b, nil
}

// ReadParameters decodes a parameter count and entries. A key may appear
// only once.
func ReadParameters(r *Reader, style ParamStyle) (*Parameters, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > MaxParameters {
		return nil, fmt.Errorf("%w: %d", ErrTooManyParameters, n)
	}

	p := &Parameters{}
	for i := uint64(0); i < n; i++ {
		key, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if _, ok := p.Get(key); ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateParameter, key)
		}

		if style == ParamsParity && key%2 == 0 {
			v, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			p.SetUint(key, v)
			continue
		}

		value, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		p.Set(key, value)
	}
	return p, nil
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
