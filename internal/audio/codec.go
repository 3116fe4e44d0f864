// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import "errors"

// Telephony audio arrives as 8-bit µ-law at 8kHz (one byte per sample); the
// voice agent wants 16-bit little-endian linear PCM at 16kHz. Conversion is
// pure and table-driven. Rate conversion is a naive duplicate/discard of
// samples — NOT a filtered resample. The agent handles the resulting quality
// ceiling fine for telephony speech; do not "improve" this without re-scoping,
// downstream behaviour is tuned to it.

const (
	ulawBias = 0x84 // 132
	ulawClip = 32635
)

// ErrMisalignedBuffer is returned when a PCM buffer is not a whole number of
// 16kHz sample pairs. The caller treats the frame as defective: drop and log,
// never forward.
var ErrMisalignedBuffer = errors.New("audio: buffer not aligned to sample-pair boundary")

// ulawDecodeTable maps each µ-law byte to its 16-bit linear sample.
var ulawDecodeTable [256]int16

// ulawSegmentTable maps the top 8 magnitude bits (after bias) to the 3-bit
// exponent segment.
var ulawSegmentTable [256]uint8

func init() {
	for i := 0; i < 256; i++ {
		u := ^uint8(i)
		t := int32((uint32(u&0x0F) << 3) + ulawBias)
		t <<= (u & 0x70) >> 4
		if u&0x80 != 0 {
			ulawDecodeTable[i] = int16(ulawBias - t)
		} else {
			ulawDecodeTable[i] = int16(t - ulawBias)
		}
	}

	seg := uint8(0)
	for i := 0; i < 256; i++ {
		if i >= 1<<(seg+1) {
			seg++
		}
		ulawSegmentTable[i] = seg
	}
}

// DecodeUlaw converts µ-law 8kHz bytes to 16-bit LE linear PCM at 16kHz.
// Each decoded sample is written twice (naive rate doubling), so the output is
// exactly 4× the input length. Empty input yields an empty slice.
func DecodeUlaw(in []byte) []byte {
	out := make([]byte, len(in)*4)
	for i, b := range in {
		s := ulawDecodeTable[b]
		lo, hi := byte(s), byte(uint16(s)>>8)
		j := i * 4
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// EncodeUlaw converts 16-bit LE linear PCM at 16kHz to µ-law 8kHz bytes by
// keeping every second sample (naive decimation) and companding it. The input
// must be a whole number of 16kHz sample pairs (4 bytes); output is
// len(in)/4 bytes. Empty input yields an empty slice.
func EncodeUlaw(in []byte) ([]byte, error) {
	if len(in)%4 != 0 {
		return nil, ErrMisalignedBuffer
	}
	out := make([]byte, len(in)/4)
	for i := range out {
		j := i * 4
		sample := int16(uint16(in[j]) | uint16(in[j+1])<<8)
		out[i] = encodeSample(sample)
	}
	return out, nil
}

func encodeSample(sample int16) byte {
	pcm := int32(sample)
	sign := uint8(0)
	if pcm < 0 {
		pcm = -pcm
		sign = 0x80
	}
	if pcm > ulawClip {
		pcm = ulawClip
	}
	pcm += ulawBias

	exponent := ulawSegmentTable[(pcm>>7)&0xFF]
	mantissa := uint8(pcm>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}
