// internal/audio/adc.go
package audio

import "github.com/ColonelBlimp/dtmfcodec/internal/dac"

// ADGDR layout: bits 4-15 hold the 12-bit conversion, bit 31 is DONE.
const (
	ADCDone      uint32 = 1 << 31
	adcMax              = 1<<12 - 1
	adcDataShift        = 4
)

// ADCSample extracts a signed sample from an ADGDR word. The conversion
// result lands in bits 3-14 of the sample, so the range is 0..32760.
func ADCSample(word uint32) int16 {
	return int16((word >> 1) & 0x7FFF)
}

// ADCWord builds the ADGDR word for a 12-bit conversion result.
func ADCWord(result uint16) uint32 {
	if result > adcMax {
		result = adcMax
	}
	return ADCDone | uint32(result)<<adcDataShift
}

// DACToADC converts a DAC output word to the ADGDR word the ADC would read
// with the output wired straight to the input.
func DACToADC(s dac.Sample) uint32 {
	return ADCWord(s.Value() << 2)
}
